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

package x509tools

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"strings"
)

var attrNames = []struct {
	Type asn1.ObjectIdentifier
	Name string
}{
	{asn1.ObjectIdentifier{2, 5, 4, 3}, "CN"},
	{asn1.ObjectIdentifier{2, 5, 4, 5}, "serialNumber"},
	{asn1.ObjectIdentifier{2, 5, 4, 6}, "C"},
	{asn1.ObjectIdentifier{2, 5, 4, 7}, "L"},
	{asn1.ObjectIdentifier{2, 5, 4, 8}, "ST"},
	{asn1.ObjectIdentifier{2, 5, 4, 10}, "O"},
	{asn1.ObjectIdentifier{2, 5, 4, 11}, "OU"},
	{asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}, "emailAddress"},
}

// FormatSubject returns a short LDAP-ish rendering of the certificate subject
func FormatSubject(cert *x509.Certificate) string {
	return FormatPkixName(cert.Subject)
}

// FormatIssuer returns a short LDAP-ish rendering of the certificate issuer
func FormatIssuer(cert *x509.Certificate) string {
	return FormatPkixName(cert.Issuer)
}

func FormatPkixName(name pkix.Name) string {
	var elems []string
	for _, att := range append(name.Names, name.ExtraNames...) {
		val, ok := att.Value.(string)
		if !ok {
			continue
		}
		attname := ""
		for _, known := range attrNames {
			if known.Type.Equal(att.Type) {
				attname = known.Name
				break
			}
		}
		if attname == "" {
			attname = att.Type.String()
		}
		elems = append(elems, fmt.Sprintf("%s=%s", attname, val))
	}
	return strings.Join(elems, ",")
}
