/*
 * Copyright (c) SAS Institute Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package pkcs7

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"

	"github.com/sassoftware/pesign/lib/x509tools"
)

// SignatureBuilder assembles a SignedData with authenticated attributes. Set
// the content, add any extra attributes, then call Sign to produce the final
// structure. SignedAttributes and AssembleWithSignature support flows where
// the raw signature is produced elsewhere.
type SignatureBuilder struct {
	signer    crypto.Signer
	certs     []*x509.Certificate
	hash      crypto.Hash
	cinfo     ContentInfo
	authAttrs AttributeList
}

func NewBuilder(signer crypto.Signer, certs []*x509.Certificate, hash crypto.Hash) *SignatureBuilder {
	return &SignatureBuilder{signer: signer, certs: certs, hash: hash}
}

func (sb *SignatureBuilder) SetContent(ctype asn1.ObjectIdentifier, value interface{}) error {
	cinfo, err := NewContentInfo(ctype, value)
	if err != nil {
		return err
	}
	sb.cinfo = cinfo
	return nil
}

func (sb *SignatureBuilder) SetContentInfo(cinfo ContentInfo) {
	sb.cinfo = cinfo
}

func (sb *SignatureBuilder) AddAuthenticatedAttribute(oid asn1.ObjectIdentifier, value interface{}) error {
	return sb.authAttrs.Add(oid, value)
}

// buildAttributes finalizes the authenticated attribute list by prepending
// the mandatory contentType and messageDigest attributes.
func (sb *SignatureBuilder) buildAttributes() (AttributeList, error) {
	if sb.cinfo.ContentType == nil {
		return nil, errors.New("pkcs7: no content set")
	}
	content, err := sb.cinfo.DigestBytes()
	if err != nil {
		return nil, err
	}
	w := sb.hash.New()
	w.Write(content)
	attrs := AttributeList{}
	if err := attrs.Add(OidAttributeContentType, sb.cinfo.ContentType); err != nil {
		return nil, err
	}
	if err := attrs.Add(OidAttributeMessageDigest, w.Sum(nil)); err != nil {
		return nil, err
	}
	attrs = append(attrs, sb.authAttrs...)
	return attrs, nil
}

// SignedAttributes returns the DER-sorted SET OF authenticated attributes,
// which is the exact byte string an external signer must sign.
func (sb *SignatureBuilder) SignedAttributes() ([]byte, error) {
	attrs, err := sb.buildAttributes()
	if err != nil {
		return nil, err
	}
	return attrs.Bytes()
}

// Sign signs the authenticated attributes with the builder's key and
// assembles the complete structure.
func (sb *SignatureBuilder) Sign() (*ContentInfoSignedData, error) {
	if sb.signer == nil {
		return nil, errors.New("pkcs7: no signing key available")
	}
	attrs, err := sb.buildAttributes()
	if err != nil {
		return nil, err
	}
	attrBytes, err := attrs.Bytes()
	if err != nil {
		return nil, err
	}
	w := sb.hash.New()
	w.Write(attrBytes)
	sig, err := sb.signer.Sign(rand.Reader, w.Sum(nil), sb.hash)
	if err != nil {
		return nil, err
	}
	return sb.assemble(attrs, sig, sb.signer.Public())
}

// AssembleWithSignature builds the final structure from a detached set of
// signed attributes and a raw signature made over them by the keyholder of
// the leaf certificate.
func (sb *SignatureBuilder) AssembleWithSignature(attrBytes, sig []byte) (*ContentInfoSignedData, error) {
	attrs, err := ParseAttributes(attrBytes)
	if err != nil {
		return nil, err
	}
	if len(sb.certs) < 1 {
		return nil, errors.New("pkcs7: certificate required")
	}
	return sb.assemble(attrs, sig, sb.certs[0].PublicKey)
}

func (sb *SignatureBuilder) assemble(attrs AttributeList, sig []byte, pubKey crypto.PublicKey) (*ContentInfoSignedData, error) {
	// the embedded list keeps the same DER order the signature was
	// computed over
	attrs, err := attrs.Sorted()
	if err != nil {
		return nil, err
	}
	digestAlg, ok := x509tools.PkixDigestAlgorithm(sb.hash)
	if !ok {
		return nil, errors.New("pkcs7: unsupported digest algorithm")
	}
	pkeyAlg, ok := x509tools.PkixPublicKeyAlgorithm(pubKey)
	if !ok {
		return nil, errors.New("pkcs7: unsupported public key algorithm")
	}
	if len(sb.certs) < 1 || !x509tools.SameKey(pubKey, sb.certs[0].PublicKey) {
		return nil, errors.New("pkcs7: first certificate must match signing key")
	}
	certs, err := MarshalCertificates(sb.certs)
	if err != nil {
		return nil, err
	}
	return &ContentInfoSignedData{
		ContentType: OidSignedData,
		Content: SignedData{
			Version:                    1,
			DigestAlgorithmIdentifiers: []pkix.AlgorithmIdentifier{digestAlg},
			ContentInfo:                sb.cinfo,
			Certificates:               certs,
			CRLs:                       nil,
			SignerInfos: []SignerInfo{{
				Version: 1,
				IssuerAndSerialNumber: IssuerAndSerial{
					IssuerName:   asn1.RawValue{FullBytes: sb.certs[0].RawIssuer},
					SerialNumber: sb.certs[0].SerialNumber,
				},
				DigestAlgorithm:           digestAlg,
				AuthenticatedAttributes:   attrs,
				DigestEncryptionAlgorithm: pkeyAlg,
				EncryptedDigest:           sig,
			}},
		},
	}, nil
}
