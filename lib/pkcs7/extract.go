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
	"encoding/asn1"
	"errors"
)

// Unmarshal decodes a ContentInfo wrapping a SignedData. Trailing zero bytes
// are tolerated; some binaries in the wild include the certificate table
// alignment padding in the blob itself.
func Unmarshal(der []byte) (*ContentInfoSignedData, error) {
	psd := new(ContentInfoSignedData)
	rest, err := asn1.Unmarshal(der, psd)
	if err != nil {
		return nil, MalformedCMSError{err}
	} else if len(bytes.TrimRight(rest, "\x00")) != 0 {
		return nil, MalformedCMSError{errors.New("trailing garbage after signature")}
	}
	if !psd.ContentType.Equal(OidSignedData) {
		return nil, UnsupportedContentTypeError{psd.ContentType}
	}
	return psd, nil
}

// ParseCertificates pulls the certificate list out of a SignedData blob
func ParseCertificates(der []byte) ([]*x509.Certificate, error) {
	psd, err := Unmarshal(der)
	if err != nil {
		return nil, err
	}
	certs, err := psd.Content.Certificates.Parse()
	if err != nil {
		return nil, err
	} else if len(certs) == 0 {
		return nil, errors.New("pkcs7: no certificates")
	}
	return certs, nil
}
