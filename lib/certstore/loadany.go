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

package certstore

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
)

const asn1Magic = 0x30 // weak but good enough?

// parseCertificatesPEM reads every certificate from a blob of PEM or DER data
func parseCertificatesPEM(blob []byte) ([]*x509.Certificate, error) {
	if len(blob) >= 1 && blob[0] == asn1Magic {
		// already in DER form
		return x509.ParseCertificates(blob)
	}
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, blob = pem.Decode(blob)
		if block == nil {
			break
		} else if block.Type == "CERTIFICATE" {
			newcerts, err := x509.ParseCertificates(block.Bytes)
			if err != nil {
				return nil, err
			}
			certs = append(certs, newcerts...)
		}
	}
	if len(certs) == 0 {
		return nil, errors.New("failed to find any certificates in PEM file")
	}
	return certs, nil
}

// parsePrivateKeyPEM reads the first private key from a blob of PEM or DER
// data
func parsePrivateKeyPEM(blob []byte) (crypto.PrivateKey, error) {
	if len(blob) >= 1 && blob[0] == asn1Magic {
		// already DER form
		return parsePrivateKey(blob)
	}
	for {
		var keyBlock *pem.Block
		keyBlock, blob = pem.Decode(blob)
		if keyBlock == nil {
			return nil, errors.New("failed to find any private keys in PEM data")
		} else if keyBlock.Type == "PRIVATE KEY" || strings.HasSuffix(keyBlock.Type, " PRIVATE KEY") {
			return parsePrivateKey(keyBlock.Bytes)
		}
	}
}

// parsePrivateKey reads a private key from a DER block
// See crypto/tls.parsePrivateKey
func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey:
			return key, nil
		default:
			return nil, errors.New("found unknown private key type in PKCS#8 wrapping")
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}
	return nil, errors.New("failed to parse private key")
}
