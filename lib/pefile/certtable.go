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

package pefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// WIN_CERTIFICATE revision and type accepted for Authenticode
	CertRevision2          = 0x0200
	CertTypePKCSSignedData = 0x0002

	certHeaderSize = 8
)

// CertEntry is one WIN_CERTIFICATE from the attribute certificate table.
// Data is the payload without the 8-byte header and without alignment
// padding.
type CertEntry struct {
	Revision uint16
	Type     uint16
	Data     []byte
}

// CertTable edits the ordered list of WIN_CERTIFICATE entries of one image.
// All mutations of the certificate table region go through this type; it
// keeps the data directory entry and the file size consistent.
type CertTable struct {
	img     *Image
	entries []CertEntry
}

// ParseCertTable walks the attribute certificate table of the image. An
// unsigned image yields an empty table.
func ParseCertTable(img *Image) (*CertTable, error) {
	t := &CertTable{img: img}
	start, size := img.CertTable()
	if size == 0 {
		return t, nil
	}
	if start%8 != 0 {
		return nil, MalformedCertTableError{"table is not 8-byte aligned"}
	}
	if start < img.EndOfSections() {
		return nil, MalformedCertTableError{"table overlaps section data"}
	}
	blob := img.Bytes()[start : start+size]
	for len(blob) != 0 {
		if len(blob) < certHeaderSize {
			return nil, MalformedCertTableError{"truncated entry header"}
		}
		length := binary.LittleEndian.Uint32(blob[:4])
		revision := binary.LittleEndian.Uint16(blob[4:6])
		certType := binary.LittleEndian.Uint16(blob[6:8])
		end := int(align8(int64(length)))
		if length < certHeaderSize || end > len(blob) {
			return nil, MalformedCertTableError{fmt.Sprintf("entry length %d out of range", length)}
		}
		if revision != CertRevision2 {
			return nil, MalformedCertTableError{fmt.Sprintf("unknown revision 0x%04x", revision)}
		}
		t.entries = append(t.entries, CertEntry{
			Revision: revision,
			Type:     certType,
			Data:     blob[certHeaderSize:length],
		})
		blob = blob[end:]
	}
	return t, nil
}

// Entries returns the parsed entries in table order
func (t *CertTable) Entries() []CertEntry {
	return t.entries
}

func (t *CertTable) Count() int {
	return len(t.entries)
}

// Insert places a new PKCS#7 signature at the given position, clamped to
// [0, Count]. The table is rewritten with every entry padded to an 8-byte
// boundary and the data directory updated with the exact new size.
func (t *CertTable) Insert(der []byte, at int) error {
	if at < 0 {
		at = 0
	} else if at > len(t.entries) {
		at = len(t.entries)
	}
	entry := CertEntry{Revision: CertRevision2, Type: CertTypePKCSSignedData, Data: der}
	t.entries = append(t.entries, CertEntry{})
	copy(t.entries[at+1:], t.entries[at:])
	t.entries[at] = entry
	return t.write()
}

// Remove deletes the entry at the given position and shifts the tail down
func (t *CertTable) Remove(at int) error {
	if at < 0 || at >= len(t.entries) {
		return MalformedCertTableError{fmt.Sprintf("no entry %d", at)}
	}
	t.entries = append(t.entries[:at], t.entries[at+1:]...)
	return t.write()
}

// AllocateSpace grows the file and the certificate table by extra bytes at
// end-of-image, without touching the entries already present. Reserving
// space ahead of time keeps the Authenticode digest stable across the final
// insert.
func (t *CertTable) AllocateSpace(extra int64) error {
	start, size := t.img.CertTable()
	if size == 0 {
		start = align8(t.img.Size())
		size = 0
	} else if start+size != t.img.Size() {
		return MalformedCertTableError{"table is not at end of image"}
	}
	if start < t.img.EndOfSections() {
		return MalformedCertTableError{"table would overlap section data"}
	}
	if err := t.img.Extend(start + size + extra); err != nil {
		return err
	}
	return t.img.SetCertTable(start, size+extra)
}

// EstimateSize returns the table size needed to hold the current entries
// plus one new signature of the given encoded size.
func (t *CertTable) EstimateSize(sigSize int) int64 {
	total := align8(certHeaderSize + int64(sigSize))
	for _, e := range t.entries {
		total += align8(certHeaderSize + int64(len(e.Data)))
	}
	return total
}

// write serializes the entries back into the image, growing or shrinking the
// table region as needed
func (t *CertTable) write() error {
	var buf bytes.Buffer
	for _, e := range t.entries {
		length := uint32(certHeaderSize + len(e.Data))
		var hdr [certHeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[:4], length)
		binary.LittleEndian.PutUint16(hdr[4:6], e.Revision)
		binary.LittleEndian.PutUint16(hdr[6:8], e.Type)
		buf.Write(hdr[:])
		buf.Write(e.Data)
		// pad to 8 bytes; the padding counts toward the table size but not
		// the entry length
		buf.Write(make([]byte, align8(int64(length))-int64(length)))
	}
	start, size := t.img.CertTable()
	atEOF := size == 0 || start+size == t.img.Size()
	total := int64(buf.Len())
	if total == 0 {
		// table is gone entirely
		if err := t.img.SetCertTable(0, 0); err != nil {
			return err
		}
		if size != 0 && atEOF {
			return t.img.Truncate(start)
		}
		return nil
	}
	if size == 0 {
		start = align8(t.img.Size())
	}
	if start < t.img.EndOfSections() {
		return MalformedCertTableError{"table would overlap section data"}
	}
	if start+total > t.img.Size() {
		if !atEOF {
			return MalformedCertTableError{"no room to grow certificate table"}
		}
		if err := t.img.Extend(start + total); err != nil {
			return err
		}
	} else if atEOF && start+total < t.img.Size() {
		if err := t.img.Truncate(start + total); err != nil {
			return err
		}
	}
	if err := t.img.WriteAt(start, buf.Bytes()); err != nil {
		return err
	}
	return t.img.SetCertTable(start, total)
}

func align8(n int64) int64 {
	return (n + 7) / 8 * 8
}
