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
	"fmt"
	"hash"
	"io"

	"github.com/sassoftware/pesign/lib/pefile"
)

// DigestEntry is the Authenticode digest of one image under one algorithm
type DigestEntry struct {
	HashFunc crypto.Hash
	Sum      []byte
}

// DigestSet holds the digests of one image under every configured algorithm,
// with one of them selected for signing.
type DigestSet struct {
	Entries  []DigestEntry
	selected int
}

// Selected returns the digest entry used for signature construction
func (ds *DigestSet) Selected() DigestEntry {
	return ds.Entries[ds.selected]
}

// Select marks the entry with the given algorithm as the active one
func (ds *DigestSet) Select(hashFunc crypto.Hash) error {
	for i, e := range ds.Entries {
		if e.HashFunc == hashFunc {
			ds.selected = i
			return nil
		}
	}
	return fmt.Errorf("digest %s was not computed", hashFunc)
}

// DigestImage computes the Authenticode digest of a PE image under each of
// the given algorithms. The checksum field, the certificate table data
// directory entry, and the certificate table itself are excluded; trailing
// data outside the certificate table is covered.
//
// In padding mode a section whose SizeOfRawData runs past end-of-file is
// padded with zeroes up to FileAlignment instead of failing, which makes
// digests of malformed images deterministic.
func DigestImage(img *pefile.Image, hashes []crypto.Hash, padding bool) (*DigestSet, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("no digest algorithm configured")
	}
	digesters := make([]hash.Hash, len(hashes))
	writers := make([]io.Writer, len(hashes))
	for i, h := range hashes {
		if !h.Available() {
			return nil, fmt.Errorf("unsupported digest algorithm %s", h)
		}
		digesters[i] = h.New()
		writers[i] = digesters[i]
	}
	w := io.MultiWriter(writers...)
	if err := writeImageDigest(w, img, padding); err != nil {
		return nil, err
	}
	ds := new(DigestSet)
	for i, h := range hashes {
		ds.Entries = append(ds.Entries, DigestEntry{HashFunc: h, Sum: digesters[i].Sum(nil)})
	}
	return ds, nil
}

func writeImageDigest(w io.Writer, img *pefile.Image, padding bool) error {
	raw := img.Bytes()
	fileSize := img.Size()
	cksum := img.CheckSumOffset()
	ddCert := img.CertTableDirOffset()
	endOfHdr := img.SizeOfHeaders()
	sections := img.SectionsByRawData()
	// some samples have a SizeOfHeaders that goes past the start of the
	// first section
	for _, sh := range sections {
		if sh.SizeOfRawData == 0 {
			continue
		}
		if p := int64(sh.PointerToRawData); p < endOfHdr {
			endOfHdr = p
		}
		break
	}
	// headers, skipping the checksum field and the certificate table
	// directory entry
	if _, err := w.Write(raw[:cksum]); err != nil {
		return err
	}
	if _, err := w.Write(raw[cksum+4 : ddCert]); err != nil {
		return err
	}
	if _, err := w.Write(raw[ddCert+8 : endOfHdr]); err != nil {
		return err
	}
	// section data in file order
	sumOfBytesHashed := endOfHdr
	for i, sh := range sections {
		if sh.SizeOfRawData == 0 {
			continue
		}
		start := int64(sh.PointerToRawData)
		end := start + int64(sh.SizeOfRawData)
		if end > fileSize {
			if !padding {
				return pefile.MalformedImageError{Reason: fmt.Sprintf("section %d extends past end of file", i)}
			}
			if _, err := w.Write(raw[start:fileSize]); err != nil {
				return err
			}
			if _, err := w.Write(make([]byte, end-fileSize)); err != nil {
				return err
			}
		} else {
			if _, err := w.Write(raw[start:end]); err != nil {
				return err
			}
		}
		sumOfBytesHashed += int64(sh.SizeOfRawData)
	}
	// trailing data beyond the sections is covered, except for the
	// certificate table
	_, certSize := img.CertTable()
	if trailerEnd := fileSize - certSize; trailerEnd > sumOfBytesHashed {
		if _, err := w.Write(raw[sumOfBytesHashed:trailerEnd]); err != nil {
			return err
		}
	}
	return nil
}
