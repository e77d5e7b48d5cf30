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

package ops

import (
	"crypto"

	"github.com/rs/zerolog"

	"github.com/sassoftware/pesign/lib/authenticode"
	"github.com/sassoftware/pesign/lib/certstore"
	"github.com/sassoftware/pesign/lib/pefile"
)

// SignImage signs a writable image in place: digest, reserve certificate
// table space, digest again, build the SignedData and insert it at signum.
// The second digest is the one that ends up in the signature; reserving
// space first guarantees it stays valid once the table is written.
func SignImage(out *pefile.Image, id *certstore.Identity, hash crypto.Hash, signum int, params *authenticode.OpusParams, log zerolog.Logger) error {
	signer, err := id.Signer()
	if err != nil {
		return err
	}
	table, err := pefile.ParseCertTable(out)
	if err != nil {
		return err
	}
	if err := out.ZeroChecksum(); err != nil {
		return err
	}
	first, err := authenticode.DigestImage(out, []crypto.Hash{hash}, true)
	if err != nil {
		return err
	}
	log.Debug().Hex("digest", first.Selected().Sum).Msg("pre-allocation digest")
	est := authenticode.EstimateSignatureSize(id.Chain(), id.Certificate().PublicKey)
	if err := table.AllocateSpace(align8(8 + int64(est))); err != nil {
		return err
	}
	ds, err := authenticode.DigestImage(out, []crypto.Hash{hash}, true)
	if err != nil {
		return err
	}
	log.Debug().Hex("digest", ds.Selected().Sum).Int("reserved", est).Msg("signing image digest")
	blob, err := authenticode.Sign(ds.Selected(), signer, id.Chain(), params)
	if err != nil {
		return err
	}
	if err := table.Insert(blob, signum); err != nil {
		return err
	}
	log.Debug().Int("size", len(blob)).Int("signum", signum).Msg("inserted signature")
	return nil
}
