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
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"math/big"
)

var (
	OidData                   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OidSignedData             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OidAttributeContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	OidAttributeMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	OidAttributeSigningTime   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
)

type ContentInfoSignedData struct {
	ContentType asn1.ObjectIdentifier
	Content     SignedData `asn1:"explicit,optional,tag:0"`
}

type SignedData struct {
	Version                    int                        `asn1:"default:1"`
	DigestAlgorithmIdentifiers []pkix.AlgorithmIdentifier `asn1:"set"`
	ContentInfo                ContentInfo
	Certificates               RawCertificates        `asn1:"optional,tag:0"`
	CRLs                       []pkix.CertificateList `asn1:"optional,tag:1"`
	SignerInfos                []SignerInfo           `asn1:"set"`
}

type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Value       asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

type RawCertificates struct {
	Raw asn1.RawContent
}

type SignerInfo struct {
	Version                   int `asn1:"default:1"`
	IssuerAndSerialNumber     IssuerAndSerial
	DigestAlgorithm           pkix.AlgorithmIdentifier
	AuthenticatedAttributes   AttributeList `asn1:"optional,tag:0"`
	DigestEncryptionAlgorithm pkix.AlgorithmIdentifier
	EncryptedDigest           []byte
	UnauthenticatedAttributes AttributeList `asn1:"optional,tag:1"`
}

type IssuerAndSerial struct {
	IssuerName   asn1.RawValue
	SerialNumber *big.Int
}

// NewContentInfo encodes a value and wraps it with the given content type.
// A nil value produces a ContentInfo with an absent content field. Value
// holds the [0] EXPLICIT wrapper, the same form Unmarshal produces on parse.
func NewContentInfo(contentType asn1.ObjectIdentifier, value interface{}) (ci ContentInfo, err error) {
	if value == nil {
		return ContentInfo{ContentType: contentType}, nil
	}
	encoded, err := asn1.Marshal(value)
	if err != nil {
		return ContentInfo{}, err
	}
	wrapped, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: encoded})
	if err != nil {
		return ContentInfo{}, err
	}
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(wrapped, &raw); err != nil {
		return ContentInfo{}, err
	}
	return ContentInfo{ContentType: contentType, Value: raw}, nil
}

// Bytes returns the full DER encoding of the inner content, or nil if the
// content field is absent.
func (ci ContentInfo) Bytes() []byte {
	return ci.Value.Bytes
}

// DigestBytes returns the portion of the content covered by the CMS
// messageDigest attribute: the contents octets of the inner value, without
// its tag and length. For an ordinary OCTET STRING data content this is the
// wrapped data per RFC 5652; for Authenticode's SpcIndirectDataContent it is
// the sequence body, which is the quirk the Authenticode spec requires.
func (ci ContentInfo) DigestBytes() ([]byte, error) {
	if ci.Value.FullBytes == nil {
		return nil, nil
	}
	var inner asn1.RawValue
	if _, err := asn1.Unmarshal(ci.Value.Bytes, &inner); err != nil {
		return nil, MalformedCMSError{err}
	}
	return inner.Bytes, nil
}

// Unmarshal decodes the inner content into dest
func (ci ContentInfo) Unmarshal(dest interface{}) error {
	if ci.Value.FullBytes == nil {
		return errors.New("pkcs7: content is absent")
	}
	rest, err := asn1.Unmarshal(ci.Value.Bytes, dest)
	if err != nil {
		return MalformedCMSError{err}
	} else if len(rest) != 0 {
		return MalformedCMSError{errors.New("trailing garbage after content")}
	}
	return nil
}

// MarshalCertificates packs a certificate list into the implicitly tagged
// form used inside SignedData
func MarshalCertificates(certs []*x509.Certificate) (RawCertificates, error) {
	var buf bytes.Buffer
	for _, cert := range certs {
		buf.Write(cert.Raw)
	}
	val := asn1.RawValue{Bytes: buf.Bytes(), Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true}
	b, err := asn1.Marshal(val)
	if err != nil {
		return RawCertificates{}, err
	}
	return RawCertificates{Raw: b}, nil
}

func (raw RawCertificates) Parse() ([]*x509.Certificate, error) {
	if len(raw.Raw) == 0 {
		return nil, nil
	}
	var val asn1.RawValue
	if _, err := asn1.Unmarshal(raw.Raw, &val); err != nil {
		return nil, MalformedCMSError{err}
	}
	certs, err := x509.ParseCertificates(val.Bytes)
	if err != nil {
		return nil, MalformedCMSError{err}
	}
	return certs, nil
}

// Marshal encodes the outer ContentInfo to DER
func (psd *ContentInfoSignedData) Marshal() ([]byte, error) {
	return asn1.Marshal(*psd)
}
