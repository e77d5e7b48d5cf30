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
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/sassoftware/pesign/lib/pkcs7"
	"github.com/sassoftware/pesign/lib/x509tools"
)

// PESignature is the decoded form of one WIN_CERTIFICATE payload
type PESignature struct {
	Indirect     SpcIndirectDataContentPe
	HashFunc     crypto.Hash
	SignerInfo   *pkcs7.SignerInfo
	Certificates []*x509.Certificate
	OpusInfo     *SpcSpOpusInfo
	Raw          []byte
}

// ImageDigest returns the Authenticode PE digest embedded in the signature
func (sig *PESignature) ImageDigest() []byte {
	return sig.Indirect.MessageDigest.Digest
}

// SignerCertificate returns the certificate the signature was made with, if
// it is among the embedded certificates.
func (sig *PESignature) SignerCertificate() (*x509.Certificate, error) {
	return sig.SignerInfo.FindCertificate(sig.Certificates)
}

// ParseSignature decodes a WIN_CERTIFICATE payload without verifying it
func ParseSignature(der []byte) (*PESignature, error) {
	psd, err := pkcs7.Unmarshal(der)
	if err != nil {
		return nil, err
	}
	if !psd.Content.ContentInfo.ContentType.Equal(OidSpcIndirectDataContent) {
		return nil, pkcs7.UnsupportedContentTypeError{Type: psd.Content.ContentInfo.ContentType}
	}
	if len(psd.Content.SignerInfos) != 1 {
		return nil, pkcs7.MalformedCMSError{Err: errors.New("expected exactly one SignerInfo")}
	}
	sig := &PESignature{Raw: der, SignerInfo: &psd.Content.SignerInfos[0]}
	if err := psd.Content.ContentInfo.Unmarshal(&sig.Indirect); err != nil {
		return nil, err
	}
	hash, err := x509tools.PkixDigestToHashE(sig.Indirect.MessageDigest.DigestAlgorithm)
	if err != nil {
		return nil, err
	}
	sig.HashFunc = hash
	sig.Certificates, err = psd.Content.Certificates.Parse()
	if err != nil {
		return nil, err
	}
	opus := new(SpcSpOpusInfo)
	err = sig.SignerInfo.AuthenticatedAttributes.GetOne(OidSpcSpOpusInfo, opus)
	switch {
	case err == nil:
		sig.OpusInfo = opus
	case errors.As(err, &pkcs7.ErrNoAttribute{}):
		// attribute is optional
	default:
		return nil, fmt.Errorf("parsing SpcSpOpusInfo attribute: %w", err)
	}
	return sig, nil
}

// Verify checks the embedded digests and the signature over the signed
// attributes. The image digest itself is the caller's to compare.
func (sig *PESignature) Verify() error {
	psd, err := pkcs7.Unmarshal(sig.Raw)
	if err != nil {
		return err
	}
	_, err = psd.Content.Verify(nil, false)
	return err
}

// FormatOpus renders the opus info for listings
func FormatOpus(info *SpcSpOpusInfo) string {
	if info == nil {
		return ""
	}
	var infos []string
	if desc := spcStringValue(info.ProgramName); desc != "" {
		infos = append(infos, fmt.Sprintf("[desc:%q]", desc))
	}
	if u := spcLinkURL(info.MoreInfo); u != "" {
		infos = append(infos, fmt.Sprintf("[url:%q]", u))
	}
	return strings.Join(infos, "")
}
