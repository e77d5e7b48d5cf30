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

package authenticode_test

import (
	"crypto"
	"crypto/sha256"
	_ "crypto/sha1"
	_ "crypto/sha512"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/pesign/internal/petest"
	"github.com/sassoftware/pesign/lib/authenticode"
	"github.com/sassoftware/pesign/lib/pefile"
)

func digestOf(t *testing.T, img *pefile.Image, hash crypto.Hash) []byte {
	t.Helper()
	ds, err := authenticode.DigestImage(img, []crypto.Hash{hash}, false)
	require.NoError(t, err)
	return ds.Selected().Sum
}

// the reference digest hashes the known segment layout of the petest image
// by hand: headers minus checksum and certificate directory entry, then both
// sections
func referenceDigest(raw []byte) []byte {
	d := sha256.New()
	d.Write(raw[:0xd8])
	d.Write(raw[0xdc:0x128])
	d.Write(raw[0x130:0x200])
	d.Write(raw[0x200:0x600])
	return d.Sum(nil)
}

func TestDigestSegments(t *testing.T) {
	raw := petest.MakeImage(t, nil)
	img, err := pefile.New(raw)
	require.NoError(t, err)
	assert.Equal(t, referenceDigest(raw), digestOf(t, img, crypto.SHA256))
}

func TestDigestSkipsExcludedFields(t *testing.T) {
	raw := petest.MakeImage(t, nil)
	img, err := pefile.New(raw)
	require.NoError(t, err)
	want := digestOf(t, img, crypto.SHA256)

	// flipping the checksum does not change the digest
	mutated := img.Clone(0)
	require.NoError(t, mutated.WriteAt(mutated.CheckSumOffset(), []byte{1, 2, 3, 4}))
	assert.Equal(t, want, digestOf(t, mutated, crypto.SHA256))

	// flipping a section byte does
	mutated2 := img.Clone(0)
	require.NoError(t, mutated2.WriteAt(0x300, []byte{0xFF}))
	assert.NotEqual(t, want, digestOf(t, mutated2, crypto.SHA256))
}

func TestDigestSet(t *testing.T) {
	img, err := pefile.New(petest.MakeImage(t, nil))
	require.NoError(t, err)
	hashes := []crypto.Hash{crypto.SHA1, crypto.SHA256, crypto.SHA512}
	ds, err := authenticode.DigestImage(img, hashes, false)
	require.NoError(t, err)
	require.Len(t, ds.Entries, 3)
	for i, h := range hashes {
		assert.Equal(t, h, ds.Entries[i].HashFunc)
		assert.Len(t, ds.Entries[i].Sum, h.Size())
	}
	require.NoError(t, ds.Select(crypto.SHA512))
	assert.Equal(t, crypto.SHA512, ds.Selected().HashFunc)
	require.Error(t, ds.Select(crypto.SHA384))
}

func TestDigestStableUnderSignatures(t *testing.T) {
	img, err := pefile.New(petest.MakeImage(t, nil))
	require.NoError(t, err)
	want := digestOf(t, img, crypto.SHA256)

	out := img.Clone(4096)
	table, err := pefile.ParseCertTable(out)
	require.NoError(t, err)
	require.NoError(t, table.Insert(make([]byte, 300), 0))

	// the certificate table is excluded, so the digest matches the
	// unsigned image
	assert.Equal(t, want, digestOf(t, out, crypto.SHA256))
}

func TestDigestInvariantUnderAllocation(t *testing.T) {
	img, err := pefile.New(petest.MakeImage(t, nil))
	require.NoError(t, err)
	want := digestOf(t, img, crypto.SHA256)

	out := img.Clone(4096)
	table, err := pefile.ParseCertTable(out)
	require.NoError(t, err)
	require.NoError(t, table.AllocateSpace(1024))

	// reserving space must not change the hash; an implementation that
	// digests into the reserved region fails here
	assert.Equal(t, want, digestOf(t, out, crypto.SHA256))
}

func TestDigestCoversTrailer(t *testing.T) {
	img, err := pefile.New(petest.MakeImage(t, nil))
	require.NoError(t, err)
	trailed, err := pefile.New(petest.MakeImage(t, []byte("extra debug data")))
	require.NoError(t, err)
	assert.NotEqual(t, digestOf(t, img, crypto.SHA256), digestOf(t, trailed, crypto.SHA256))
}

func TestDigestPaddingMode(t *testing.T) {
	raw := petest.MakeImage(t, nil)
	// truncate the last 0x100 bytes so .data runs past EOF
	truncated := raw[:len(raw)-0x100]
	img, err := pefile.New(truncated)
	require.NoError(t, err)

	_, err = authenticode.DigestImage(img, []crypto.Hash{crypto.SHA256}, false)
	require.Error(t, err)

	ds, err := authenticode.DigestImage(img, []crypto.Hash{crypto.SHA256}, true)
	require.NoError(t, err)

	// padding mode behaves as if the section were zero-filled to size
	padded := append(append([]byte(nil), truncated...), make([]byte, 0x100)...)
	pimg, err := pefile.New(padded)
	require.NoError(t, err)
	assert.Equal(t, ds.Selected().Sum, digestOf(t, pimg, crypto.SHA256))
}
