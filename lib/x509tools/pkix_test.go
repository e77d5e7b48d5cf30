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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashByName(t *testing.T) {
	assert.Equal(t, crypto.SHA256, HashByName("sha256"))
	assert.Equal(t, crypto.SHA1, HashByName("sha1"))
	assert.Equal(t, crypto.Hash(0), HashByName("md5"))
	assert.Equal(t, crypto.Hash(0), HashByName(""))
	assert.Equal(t, []string{"sha1", "sha224", "sha256", "sha384", "sha512"}, SupportedHashNames())
}

func TestPkixDigestRoundTrip(t *testing.T) {
	for hash := range HashNames {
		alg, ok := PkixDigestAlgorithm(hash)
		require.True(t, ok)
		back, ok := PkixDigestToHash(alg)
		require.True(t, ok)
		assert.Equal(t, hash, back)
	}
	_, ok := PkixDigestAlgorithm(crypto.MD5)
	assert.False(t, ok)
}

func TestSameKey(t *testing.T) {
	rsa1, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	rsa2, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ec1, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	assert.True(t, SameKey(rsa1, rsa1.Public()))
	assert.False(t, SameKey(rsa1, rsa2.Public()))
	assert.False(t, SameKey(rsa1, ec1.Public()))
	assert.True(t, SameKey(ec1.Public(), ec1))
}

func TestVerify(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest)
	require.NoError(t, err)
	assert.NoError(t, Verify(key.Public(), crypto.SHA256, digest, sig))
	sig[0] ^= 0xFF
	assert.Error(t, Verify(key.Public(), crypto.SHA256, digest, sig))
}
