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

// Package certstore locates signing identities by nickname in a certificate
// directory. PEM certificate/key pairs and PKCS#12 bundles are supported;
// passphrases come from the system keyring or an interactive prompt.
package certstore

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/howeyc/gopass"
	"github.com/zalando/go-keyring"
	"software.sslmate.com/src/go-pkcs12"

	"github.com/sassoftware/pesign/lib/x509tools"
)

const keyringService = "pesign"

// Store is a handle on a certificate directory
type Store struct {
	dir string
	// PassphrasePrompt is invoked for encrypted bundles whose passphrase is
	// not in the keyring; tests override it
	PassphrasePrompt func(name string) ([]byte, error)
}

// Identity is a signing certificate with its chain and, when available, its
// private key
type Identity struct {
	Nickname     string
	Leaf         *x509.Certificate
	Certificates []*x509.Certificate
	PrivateKey   crypto.PrivateKey
}

// Open validates that the certificate directory exists
func Open(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening certificate directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("certificate directory %s is not a directory", dir)
	}
	return &Store{dir: dir, PassphrasePrompt: promptPassphrase}, nil
}

// Find looks up an identity by nickname. The nickname matches either the
// base name of the file holding the certificate or the leaf subject CN.
func (s *Store) Find(nickname string) (*Identity, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	loadable := 0
	for _, name := range names {
		var id *Identity
		var err error
		switch strings.ToLower(filepath.Ext(name)) {
		case ".pem", ".crt", ".cert":
			id, err = s.loadPEM(name)
		case ".p12", ".pfx":
			id, err = s.loadPKCS12(name)
		default:
			continue
		}
		if err != nil {
			// an unreadable bundle should not hide the others
			continue
		}
		loadable++
		if id.matches(nickname) {
			id.Nickname = nickname
			return id, nil
		}
	}
	if loadable == 0 {
		// pesign historically pointed at NSS databases; probe for one so
		// the operator gets a useful message instead of a bare not-found
		if dbs, _ := filepath.Glob(filepath.Join(s.dir, "cert*.db")); len(dbs) != 0 {
			return nil, fmt.Errorf("%s holds an NSS certificate database, which is not supported; export the certificate to PEM or PKCS#12", s.dir)
		}
	}
	return nil, CertificateNotFoundError{Nickname: nickname, Dir: s.dir}
}

func (id *Identity) matches(nickname string) bool {
	if id.Leaf != nil && id.Leaf.Subject.CommonName == nickname {
		return true
	}
	return id.Nickname == nickname
}

func (s *Store) loadPEM(name string) (*Identity, error) {
	blob, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	certs, err := parseCertificatesPEM(blob)
	if err != nil {
		return nil, err
	}
	id := &Identity{
		Nickname:     stem(name),
		Leaf:         certs[0],
		Certificates: certs,
	}
	// key may be in the same file or in a sibling .key file
	key, err := parsePrivateKeyPEM(blob)
	if err != nil {
		if keyBlob, err2 := os.ReadFile(filepath.Join(s.dir, stem(name)+".key")); err2 == nil {
			key, err = parsePrivateKeyPEM(keyBlob)
		}
	}
	if err == nil && key != nil {
		if !x509tools.SameKey(key, id.Leaf.PublicKey) {
			return nil, fmt.Errorf("private key for %s does not match certificate", name)
		}
		id.PrivateKey = key
	}
	return id, nil
}

func (s *Store) loadPKCS12(name string) (*Identity, error) {
	blob, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var key interface{}
	var leaf *x509.Certificate
	var chain []*x509.Certificate
	// a bundle that opens with the empty passphrase needs neither the
	// keyring nor the prompt
	key, leaf, chain, err = pkcs12.DecodeChain(blob, "")
	if err != nil {
		for _, password := range s.passphrases(stem(name)) {
			key, leaf, chain, err = pkcs12.DecodeChain(blob, password)
			if err == nil {
				break
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	id := &Identity{
		Nickname:     stem(name),
		Leaf:         leaf,
		Certificates: append([]*x509.Certificate{leaf}, chain...),
		PrivateKey:   key,
	}
	return id, nil
}

// passphrases yields candidate passphrases for a bundle: empty, then the
// keyring entry, then an interactive prompt.
func (s *Store) passphrases(name string) []string {
	candidates := []string{""}
	if secret, err := keyring.Get(keyringService, name); err == nil {
		candidates = append(candidates, secret)
	} else if s.PassphrasePrompt != nil {
		if secret, err := s.PassphrasePrompt(name); err == nil {
			candidates = append(candidates, string(secret))
		}
	}
	return candidates
}

func promptPassphrase(name string) ([]byte, error) {
	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", name)
	return gopass.GetPasswd()
}

// Sign produces a raw signature over a pre-computed digest
func (id *Identity) Sign(digest []byte, hash crypto.Hash) ([]byte, error) {
	signer, err := id.Signer()
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(rand.Reader, digest, hash)
	if err != nil {
		return nil, SigningFailedError{Nickname: id.Nickname, Err: err}
	}
	return sig, nil
}

// Signer returns the identity's private key, or PrivateKeyUnavailableError
// when the store only holds its certificate.
func (id *Identity) Signer() (crypto.Signer, error) {
	signer, ok := id.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, PrivateKeyUnavailableError{Nickname: id.Nickname}
	}
	return signer, nil
}

// Certificate returns the leaf certificate
func (id *Identity) Certificate() *x509.Certificate {
	return id.Leaf
}

// Chain returns the leaf plus any intermediates, with self-signed roots
// omitted beyond the leaf
func (id *Identity) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for i, cert := range id.Certificates {
		if i > 0 && bytes.Equal(cert.RawIssuer, cert.RawSubject) {
			// omit root CA
			continue
		}
		chain = append(chain, cert)
	}
	return chain
}

// PublicKeyDER returns the leaf public key as a DER SubjectPublicKeyInfo
func (id *Identity) PublicKeyDER() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(id.Leaf.PublicKey)
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
