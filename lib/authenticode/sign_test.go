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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/pesign/internal/petest"
	"github.com/sassoftware/pesign/lib/authenticode"
	"github.com/sassoftware/pesign/lib/pefile"
	"github.com/sassoftware/pesign/lib/pkcs7"
)

func testDigest(t *testing.T) authenticode.DigestEntry {
	t.Helper()
	img, err := pefile.New(petest.MakeImage(t, nil))
	require.NoError(t, err)
	ds, err := authenticode.DigestImage(img, []crypto.Hash{crypto.SHA256}, false)
	require.NoError(t, err)
	return ds.Selected()
}

func TestSignAndParse(t *testing.T) {
	key, cert := petest.MakeIdentity(t, "Test CA")
	digest := testDigest(t)

	blob, err := authenticode.Sign(digest, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)

	sig, err := authenticode.ParseSignature(blob)
	require.NoError(t, err)
	assert.Equal(t, crypto.SHA256, sig.HashFunc)
	assert.Equal(t, digest.Sum, sig.ImageDigest())
	require.Len(t, sig.Certificates, 1)
	signer, err := sig.SignerCertificate()
	require.NoError(t, err)
	assert.Equal(t, "Test CA", signer.Subject.CommonName)
	require.NotNil(t, sig.OpusInfo)
	assert.Empty(t, authenticode.FormatOpus(sig.OpusInfo))

	require.NoError(t, sig.Verify())
}

func TestSignOpusParams(t *testing.T) {
	key, cert := petest.MakeIdentity(t, "Test CA")
	digest := testDigest(t)

	blob, err := authenticode.Sign(digest, key, []*x509.Certificate{cert}, &authenticode.OpusParams{
		Description: "shim loader",
		URL:         "https://example.com/shim",
	})
	require.NoError(t, err)
	sig, err := authenticode.ParseSignature(blob)
	require.NoError(t, err)
	require.NotNil(t, sig.OpusInfo)
	assert.Equal(t, `[desc:"shim loader"][url:"https://example.com/shim"]`, authenticode.FormatOpus(sig.OpusInfo))
	require.NoError(t, sig.Verify())
}

func TestSignDeterministic(t *testing.T) {
	key, cert := petest.MakeIdentity(t, "Test CA")
	digest := testDigest(t)

	blob1, err := authenticode.Sign(digest, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)
	blob2, err := authenticode.Sign(digest, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)
	// RSA PKCS#1 v1.5 is deterministic, so identical inputs sign
	// identically
	assert.Equal(t, blob1, blob2)
}

func TestParseRejectsWrongContentType(t *testing.T) {
	key, cert := petest.MakeIdentity(t, "Test CA")
	sb := pkcs7.NewBuilder(key, []*x509.Certificate{cert}, crypto.SHA256)
	require.NoError(t, sb.SetContent(pkcs7.OidData, []byte("not authenticode")))
	psd, err := sb.Sign()
	require.NoError(t, err)
	blob, err := psd.Marshal()
	require.NoError(t, err)

	_, err = authenticode.ParseSignature(blob)
	assert.ErrorAs(t, err, &pkcs7.UnsupportedContentTypeError{})
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := authenticode.ParseSignature([]byte("definitely not DER"))
	assert.ErrorAs(t, err, &pkcs7.MalformedCMSError{})
}

func TestDetachedAttributesRoundTrip(t *testing.T) {
	key, cert := petest.MakeIdentity(t, "Test CA")
	digest := testDigest(t)

	// export the signed attributes, sign them out of band, reassemble
	sattrs, err := authenticode.SignedAttributes(digest, nil)
	require.NoError(t, err)

	w := crypto.SHA256.New()
	w.Write(sattrs)
	rawSig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, w.Sum(nil))
	require.NoError(t, err)

	blob, err := authenticode.AssembleRawSignature(digest, sattrs, rawSig, []*x509.Certificate{cert})
	require.NoError(t, err)

	sig, err := authenticode.ParseSignature(blob)
	require.NoError(t, err)
	assert.Equal(t, digest.Sum, sig.ImageDigest())
	require.NoError(t, sig.Verify())

	// the inline path produces the identical structure
	inline, err := authenticode.Sign(digest, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)
	assert.Equal(t, inline, blob)
}

func TestEstimateCoversActualSize(t *testing.T) {
	key, cert := petest.MakeIdentity(t, "Test CA")
	digest := testDigest(t)

	blob, err := authenticode.Sign(digest, key, []*x509.Certificate{cert}, nil)
	require.NoError(t, err)
	est := authenticode.EstimateSignatureSize([]*x509.Certificate{cert}, cert.PublicKey)
	assert.GreaterOrEqual(t, est, len(blob))
}
