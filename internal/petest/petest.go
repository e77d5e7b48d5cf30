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

// Package petest builds small synthetic PE images and throwaway signing
// identities for tests.
package petest

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"debug/pe"
	"encoding/binary"
	"math/big"
	"testing"
	"time"
)

const (
	peStart       = 0x80
	sizeOfHeaders = 0x200
	fileAlign     = 0x200
)

// MakeImage builds a minimal unsigned PE32+ image with two sections. The
// section contents are deterministic. Extra trailing data, if any, is
// appended after the last section.
func MakeImage(t *testing.T, trailer []byte) []byte {
	t.Helper()
	var buf bytes.Buffer

	// DOS header and stub
	dos := make([]byte, peStart)
	dos[0] = 'M'
	dos[1] = 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], peStart)
	buf.Write(dos)

	buf.WriteString("PE\x00\x00")
	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     2,
		SizeOfOptionalHeader: 240,
		Characteristics:      0x0022,
	}
	mustWrite(t, &buf, &fh)

	opt := pe.OptionalHeader64{
		Magic:               0x20b,
		SectionAlignment:    0x1000,
		FileAlignment:       fileAlign,
		SizeOfImage:         0x3000,
		SizeOfHeaders:       sizeOfHeaders,
		Subsystem:           10, // EFI application
		NumberOfRvaAndSizes: 16,
	}
	mustWrite(t, &buf, &opt)

	text := pe.SectionHeader32{
		VirtualSize:      0x200,
		VirtualAddress:   0x1000,
		SizeOfRawData:    0x200,
		PointerToRawData: 0x200,
		Characteristics:  0x60000020,
	}
	copy(text.Name[:], ".text")
	mustWrite(t, &buf, &text)
	data := pe.SectionHeader32{
		VirtualSize:      0x200,
		VirtualAddress:   0x2000,
		SizeOfRawData:    0x200,
		PointerToRawData: 0x400,
		Characteristics:  0xc0000040,
	}
	copy(data.Name[:], ".data")
	mustWrite(t, &buf, &data)

	// pad headers out to SizeOfHeaders
	buf.Write(make([]byte, sizeOfHeaders-buf.Len()))

	// section contents
	for i := 0; i < 0x200; i++ {
		buf.WriteByte(byte(i))
	}
	for i := 0; i < 0x200; i++ {
		buf.WriteByte(byte(255 - i%256))
	}
	buf.Write(trailer)
	return buf.Bytes()
}

func mustWrite(t *testing.T, buf *bytes.Buffer, val interface{}) {
	t.Helper()
	if err := binary.Write(buf, binary.LittleEndian, val); err != nil {
		t.Fatal(err)
	}
}

// MakeIdentity generates a throwaway RSA key and a self-signed certificate
// with the given common name
func MakeIdentity(t *testing.T, commonName string) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(12345),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return key, cert
}
