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

package daemon

import (
	"crypto"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sassoftware/pesign/internal/ops"
	"github.com/sassoftware/pesign/lib/authenticode"
	"github.com/sassoftware/pesign/lib/pefile"
	"github.com/sassoftware/pesign/lib/x509tools"
)

// requestHash reads the digest query parameter, defaulting to sha256
func requestHash(req *http.Request) (crypto.Hash, error) {
	name := req.URL.Query().Get("digest")
	if name == "" {
		name = "sha256"
	}
	hash := x509tools.HashByName(name)
	if hash == 0 {
		return 0, fmt.Errorf("digest %q not found", name)
	}
	return hash, nil
}

func (s *server) handleSign(rw http.ResponseWriter, req *http.Request) {
	nickname := req.URL.Query().Get("cert")
	if nickname == "" {
		s.fail(rw, req, http.StatusBadRequest, fmt.Errorf("cert parameter is required"))
		return
	}
	hash, err := requestHash(req)
	if err != nil {
		s.fail(rw, req, http.StatusBadRequest, err)
		return
	}
	signum := 0
	if v := req.URL.Query().Get("signum"); v != "" {
		if signum, err = strconv.Atoi(v); err != nil {
			s.fail(rw, req, http.StatusBadRequest, fmt.Errorf("invalid signature number %q", v))
			return
		}
	}
	blob, err := io.ReadAll(req.Body)
	if err != nil {
		s.fail(rw, req, http.StatusBadRequest, err)
		return
	}
	id, err := s.store.Find(nickname)
	if err != nil {
		s.fail(rw, req, http.StatusNotFound, err)
		return
	}
	img, err := pefile.New(blob)
	if err != nil {
		s.fail(rw, req, http.StatusUnprocessableEntity, err)
		return
	}
	est := authenticode.EstimateSignatureSize(id.Chain(), id.Certificate().PublicKey)
	out := img.Clone(int64(est) + 64)
	if err := ops.SignImage(out, id, hash, signum, nil, s.log); err != nil {
		s.fail(rw, req, http.StatusInternalServerError, err)
		return
	}
	s.metrics.signatures.Inc()
	rw.Header().Set("Content-Type", "application/octet-stream")
	_, _ = out.WriteTo(rw)
}

func (s *server) handleHash(rw http.ResponseWriter, req *http.Request) {
	hash, err := requestHash(req)
	if err != nil {
		s.fail(rw, req, http.StatusBadRequest, err)
		return
	}
	blob, err := io.ReadAll(req.Body)
	if err != nil {
		s.fail(rw, req, http.StatusBadRequest, err)
		return
	}
	img, err := pefile.New(blob)
	if err != nil {
		s.fail(rw, req, http.StatusUnprocessableEntity, err)
		return
	}
	padding := req.URL.Query().Get("padding") == "1"
	ds, err := authenticode.DigestImage(img, []crypto.Hash{hash}, padding)
	if err != nil {
		s.fail(rw, req, http.StatusUnprocessableEntity, err)
		return
	}
	rw.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(rw, "%x\n", ds.Selected().Sum)
}

func (s *server) handleHealth(rw http.ResponseWriter, req *http.Request) {
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("OK\n"))
}

func (s *server) fail(rw http.ResponseWriter, req *http.Request, status int, err error) {
	s.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
	s.metrics.errors.Inc()
	http.Error(rw, err.Error(), status)
}
