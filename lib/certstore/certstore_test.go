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

package certstore_test

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sassoftware/pesign/internal/petest"
	"github.com/sassoftware/pesign/lib/certstore"
)

func writePEMIdentity(t *testing.T, dir, name string, key *rsa.PrivateKey, cert *x509.Certificate) {
	t.Helper()
	var blob []byte
	blob = append(blob, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	if key != nil {
		keyDER, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)
		blob = append(blob, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), blob, 0600))
}

func TestFindByCommonName(t *testing.T) {
	dir := t.TempDir()
	key, cert := petest.MakeIdentity(t, "Test CA")
	writePEMIdentity(t, dir, "signing.pem", key, cert)

	store, err := certstore.Open(dir)
	require.NoError(t, err)

	id, err := store.Find("Test CA")
	require.NoError(t, err)
	assert.Equal(t, cert.Raw, id.Certificate().Raw)

	digest := sha256.Sum256([]byte("payload"))
	sig, err := id.Sign(digest[:], crypto.SHA256)
	require.NoError(t, err)
	assert.NoError(t, rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig))
}

func TestFindByFileStem(t *testing.T) {
	dir := t.TempDir()
	key, cert := petest.MakeIdentity(t, "Some Other CN")
	writePEMIdentity(t, dir, "uefi-signing.pem", key, cert)

	store, err := certstore.Open(dir)
	require.NoError(t, err)
	id, err := store.Find("uefi-signing")
	require.NoError(t, err)
	assert.Equal(t, "uefi-signing", id.Nickname)
}

func TestKeyInSiblingFile(t *testing.T) {
	dir := t.TempDir()
	key, cert := petest.MakeIdentity(t, "Split Identity")
	writePEMIdentity(t, dir, "split.pem", nil, cert)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "split.key"), keyPEM, 0600))

	store, err := certstore.Open(dir)
	require.NoError(t, err)
	id, err := store.Find("Split Identity")
	require.NoError(t, err)
	_, err = id.Signer()
	assert.NoError(t, err)
}

func TestCertificateNotFound(t *testing.T) {
	dir := t.TempDir()
	key, cert := petest.MakeIdentity(t, "Test CA")
	writePEMIdentity(t, dir, "signing.pem", key, cert)

	store, err := certstore.Open(dir)
	require.NoError(t, err)
	_, err = store.Find("No Such CA")
	assert.ErrorAs(t, err, &certstore.CertificateNotFoundError{})
}

func TestPrivateKeyUnavailable(t *testing.T) {
	dir := t.TempDir()
	_, cert := petest.MakeIdentity(t, "Cert Only")
	writePEMIdentity(t, dir, "certonly.pem", nil, cert)

	store, err := certstore.Open(dir)
	require.NoError(t, err)
	id, err := store.Find("Cert Only")
	require.NoError(t, err)

	// the certificate itself is exportable
	der, err := id.PublicKeyDER()
	require.NoError(t, err)
	assert.NotEmpty(t, der)

	_, err = id.Signer()
	assert.ErrorAs(t, err, &certstore.PrivateKeyUnavailableError{})
}

func TestNSSDatabaseProbe(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert9.db"), []byte("sqlite"), 0600))

	store, err := certstore.Open(dir)
	require.NoError(t, err)
	_, err = store.Find("Test CA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NSS")
}

func TestMissingDirectory(t *testing.T) {
	_, err := certstore.Open(filepath.Join(t.TempDir(), "nonexistent"))
	assert.Error(t, err)
}
