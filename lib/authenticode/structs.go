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

// Package authenticode implements the Microsoft Authenticode PE image digest
// and the SpcIndirectDataContent signature payload embedded in the attribute
// certificate table.
package authenticode

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"unicode/utf16"
)

// PE Authenticode: https://learn.microsoft.com/en-us/windows-hardware/drivers/install/authenticode

var (
	OidSpcIndirectDataContent = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 4}
	OidSpcPeImageData         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 15}
	OidSpcSpOpusInfo          = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 2, 1, 12}
)

type SpcIndirectDataContentPe struct {
	Data          SpcAttributePeImageData
	MessageDigest DigestInfo
}

type SpcAttributePeImageData struct {
	Type  asn1.ObjectIdentifier
	Value SpcPeImageData `asn1:"explicit,optional,tag:0"`
}

type SpcPeImageData struct {
	Flags asn1.BitString
	// File is an SpcLink CHOICE; kept raw because encoding/asn1 cannot
	// express CHOICE fields
	File asn1.RawValue `asn1:"optional"`
}

type DigestInfo struct {
	DigestAlgorithm pkix.AlgorithmIdentifier
	Digest          []byte
}

type SpcSpOpusInfo struct {
	ProgramName asn1.RawValue `asn1:"explicit,optional,tag:0"`
	MoreInfo    asn1.RawValue `asn1:"explicit,optional,tag:1"`
}

const (
	spcLinkChoiceURL  = 0
	spcLinkChoiceFile = 2

	spcStringChoiceUnicode = 0
)

// newSpcFileLink builds the [0]-wrapped SpcLink file choice holding a
// unicode SpcString, the value Authenticode places in SpcPeImageData
func newSpcFileLink(name string) (asn1.RawValue, error) {
	spcString, err := asn1.Marshal(asn1.RawValue{
		Class: asn1.ClassContextSpecific,
		Tag:   spcStringChoiceUnicode,
		Bytes: bmpEncode(name),
	})
	if err != nil {
		return asn1.RawValue{}, err
	}
	fileChoice, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        spcLinkChoiceFile,
		IsCompound: true,
		Bytes:      spcString,
	})
	if err != nil {
		return asn1.RawValue{}, err
	}
	link, err := asn1.Marshal(asn1.RawValue{
		Class:      asn1.ClassContextSpecific,
		Tag:        0,
		IsCompound: true,
		Bytes:      fileChoice,
	})
	if err != nil {
		return asn1.RawValue{}, err
	}
	return asn1.RawValue{FullBytes: link}, nil
}

// newSpcString builds an SpcString with the unicode choice
func newSpcString(value string) asn1.RawValue {
	return asn1.RawValue{
		Class: asn1.ClassContextSpecific,
		Tag:   spcStringChoiceUnicode,
		Bytes: bmpEncode(value),
	}
}

// spcStringValue decodes the unicode choice of an SpcString raw value
func spcStringValue(raw asn1.RawValue) string {
	if raw.Class != asn1.ClassContextSpecific || raw.Tag != spcStringChoiceUnicode {
		return ""
	}
	return bmpDecode(raw.Bytes)
}

// spcLinkURL decodes the url choice of an SpcLink raw value
func spcLinkURL(raw asn1.RawValue) string {
	if raw.Class != asn1.ClassContextSpecific || raw.Tag != spcLinkChoiceURL {
		return ""
	}
	return string(raw.Bytes)
}

// bmpEncode converts a string to UCS-2 big endian (BMPSTRING contents)
func bmpEncode(s string) []byte {
	runes := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(runes))
	for i, r := range runes {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func bmpDecode(b []byte) string {
	if len(b)%2 != 0 {
		return ""
	}
	runes := make([]uint16, len(b)/2)
	for i := range runes {
		runes[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(runes))
}
