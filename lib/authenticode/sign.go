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

package authenticode

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"

	"github.com/sassoftware/pesign/lib/pkcs7"
	"github.com/sassoftware/pesign/lib/x509tools"
)

// OpusParams carries the optional program description placed in the
// SpcSpOpusInfo signed attribute
type OpusParams struct {
	Description string
	URL         string
}

// NewIndirectData builds the SpcIndirectDataContent for a PE image digest
func NewIndirectData(digest DigestEntry) (SpcIndirectDataContentPe, error) {
	alg, ok := x509tools.PkixDigestAlgorithm(digest.HashFunc)
	if !ok {
		return SpcIndirectDataContentPe{}, errors.New("unsupported digest algorithm")
	}
	link, err := newSpcFileLink("")
	if err != nil {
		return SpcIndirectDataContentPe{}, err
	}
	var indirect SpcIndirectDataContentPe
	indirect.Data.Type = OidSpcPeImageData
	indirect.Data.Value.File = link
	indirect.MessageDigest.DigestAlgorithm = alg
	indirect.MessageDigest.Digest = digest.Sum
	return indirect, nil
}

func newBuilder(digest DigestEntry, signer crypto.Signer, certs []*x509.Certificate, params *OpusParams) (*pkcs7.SignatureBuilder, error) {
	indirect, err := NewIndirectData(digest)
	if err != nil {
		return nil, err
	}
	sb := pkcs7.NewBuilder(signer, certs, digest.HashFunc)
	if err := sb.SetContent(OidSpcIndirectDataContent, indirect); err != nil {
		return nil, err
	}
	if err := sb.AddAuthenticatedAttribute(OidSpcSpOpusInfo, makeOpusInfo(params)); err != nil {
		return nil, err
	}
	return sb, nil
}

func makeOpusInfo(params *OpusParams) SpcSpOpusInfo {
	var info SpcSpOpusInfo
	if params == nil {
		return info
	}
	if params.Description != "" {
		info.ProgramName = newSpcString(params.Description)
	}
	if params.URL != "" {
		info.MoreInfo = asn1URLLink(params.URL)
	}
	return info
}

// Sign builds the complete Authenticode SignedData over a PE image digest
// and returns its DER encoding, ready to become the payload of a
// WIN_CERTIFICATE entry.
func Sign(digest DigestEntry, signer crypto.Signer, certs []*x509.Certificate, params *OpusParams) ([]byte, error) {
	sb, err := newBuilder(digest, signer, certs, params)
	if err != nil {
		return nil, err
	}
	psd, err := sb.Sign()
	if err != nil {
		return nil, err
	}
	return psd.Marshal()
}

// SignedAttributes returns the DER-sorted signed attribute set for a digest,
// the byte string a detached signer must produce a raw signature over.
func SignedAttributes(digest DigestEntry, params *OpusParams) ([]byte, error) {
	sb, err := newBuilder(digest, nil, nil, params)
	if err != nil {
		return nil, err
	}
	return sb.SignedAttributes()
}

// AssembleRawSignature combines a signed attribute blob and a raw signature
// made elsewhere into the complete SignedData. The attribute blob must be
// the one the signature was computed over, and digest must be the image
// digest it was built from: the signed attributes, including the message
// digest, are taken from the blob, while the encapsulated
// SpcIndirectDataContent is rebuilt from digest.
func AssembleRawSignature(digest DigestEntry, sattrs, rawSig []byte, certs []*x509.Certificate) ([]byte, error) {
	sb, err := newBuilder(digest, nil, certs, nil)
	if err != nil {
		return nil, err
	}
	psd, err := sb.AssembleWithSignature(sattrs, rawSig)
	if err != nil {
		return nil, err
	}
	return psd.Marshal()
}

// EstimateSignatureSize returns an upper bound on the encoded size of a
// SignedData built from these inputs, so that certificate table space can be
// reserved before the final digest is taken.
func EstimateSignatureSize(certs []*x509.Certificate, pub crypto.PublicKey) int {
	// SignedData overhead: algorithms, content, attributes, issuer/serial
	size := 1024
	for _, cert := range certs {
		size += len(cert.Raw) + 16
	}
	switch key := pub.(type) {
	case *rsa.PublicKey:
		size += key.Size() + 16
	case *ecdsa.PublicKey:
		size += 2*((key.Curve.Params().BitSize+7)/8) + 32
	default:
		size += 1024
	}
	return size
}

func asn1URLLink(url string) asn1.RawValue {
	return asn1.RawValue{
		Class: asn1.ClassContextSpecific,
		Tag:   spcLinkChoiceURL,
		Bytes: []byte(url),
	}
}
