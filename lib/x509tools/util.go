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
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"
)

// SameKey returns true if the two public or private keys have the same public
// key material.
func SameKey(pub1, pub2 interface{}) bool {
	if privkey, ok := pub1.(crypto.Signer); ok {
		pub1 = privkey.Public()
	}
	if privkey, ok := pub2.(crypto.Signer); ok {
		pub2 = privkey.Public()
	}
	switch key1 := pub1.(type) {
	case *rsa.PublicKey:
		key2, ok := pub2.(*rsa.PublicKey)
		return ok && key1.E == key2.E && key1.N.Cmp(key2.N) == 0
	case *ecdsa.PublicKey:
		key2, ok := pub2.(*ecdsa.PublicKey)
		return ok && key1.X.Cmp(key2.X) == 0 && key1.Y.Cmp(key2.Y) == 0
	default:
		return false
	}
}

type ecdsaSignature struct {
	R, S *big.Int
}

// Verify checks a signature made over a pre-computed digest. For RSA keys a
// PKCS#1 v1.5 signature is expected.
func Verify(pub crypto.PublicKey, hash crypto.Hash, digest []byte, sig []byte) error {
	switch pubk := pub.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(pubk, hash, digest, sig)
	case *ecdsa.PublicKey:
		esig := new(ecdsaSignature)
		if !ecdsa.VerifyASN1(pubk, digest, sig) {
			// tolerate raw R||S signatures as well
			if len(sig) == 2*((pubk.Curve.Params().BitSize+7)/8) {
				esig.R = new(big.Int).SetBytes(sig[:len(sig)/2])
				esig.S = new(big.Int).SetBytes(sig[len(sig)/2:])
				if ecdsa.Verify(pubk, digest, esig.R, esig.S) {
					return nil
				}
			}
			return errors.New("ECDSA verification failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported public key type %T", pub)
	}
}
