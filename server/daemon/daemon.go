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

// Package daemon serves signing and hashing over a unix socket, so that a
// single process can hold the credential store open on behalf of build jobs
// that lack access to it.
package daemon

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sassoftware/pesign/lib/certstore"
)

const reexecEnv = "PESIGN_DAEMON_CHILD"

type Options struct {
	Socket  string
	CertDir string
	Fork    bool
	Log     zerolog.Logger
}

type server struct {
	store   *certstore.Store
	log     zerolog.Logger
	metrics *metrics
}

// Run starts the daemon. With Fork set the process re-executes itself
// detached from the controlling terminal and returns immediately; otherwise
// the server runs in the foreground until the socket is torn down.
func Run(opts Options) error {
	if opts.Fork && os.Getenv(reexecEnv) == "" {
		return forkChild()
	}
	store, err := certstore.Open(opts.CertDir)
	if err != nil {
		return err
	}
	s := &server{store: store, log: opts.Log, metrics: newMetrics()}

	if err := os.MkdirAll(filepath.Dir(opts.Socket), 0755); err != nil {
		return err
	}
	if err := os.Remove(opts.Socket); err != nil && !os.IsNotExist(err) {
		return err
	}
	listener, err := net.Listen("unix", opts.Socket)
	if err != nil {
		return err
	}
	defer os.Remove(opts.Socket)

	s.log.Info().Str("socket", opts.Socket).Msg("daemon listening")
	err = http.Serve(listener, s.router())
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Post("/sign", s.handleSign)
	r.Post("/hash", s.handleHash)
	r.Get("/healthz", s.handleHealth)
	r.Method("GET", "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return r
}

// forkChild re-executes the current binary detached, in lieu of fork()
func forkChild() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), reexecEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemonizing: %w", err)
	}
	return cmd.Process.Release()
}
