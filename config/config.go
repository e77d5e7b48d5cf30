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

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Version is set at build time with -ldflags
var Version = "unknown"

const (
	DefaultCertDir = "/etc/pki/pesign"
	DefaultToken   = "NSS Certificate DB"
	DefaultSocket  = "/run/pesign/socket"
)

type DaemonConfig struct {
	Socket   string `yaml:"socket"`   // Path to the unix socket the daemon listens on
	LogLevel string `yaml:"loglevel"` // Daemon log level (debug, info, warn); read but not applied, the daemon logs at the --verbose level
}

type Config struct {
	CertDir string        `yaml:"certdir"` // Directory holding signing certificates and keys
	Token   string        `yaml:"token"`   // Token name; read but not used, keys are looked up in CertDir
	Daemon  *DaemonConfig `yaml:"daemon"`

	path string
}

func ReadFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	config := new(Config)
	if err := yaml.Unmarshal(blob, config); err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	config.path = path
	config.applyDefaults()
	return config, nil
}

// Load reads the named config file, or the default one if path is empty. A
// missing default config is not an error; built-in defaults are used instead.
func Load(path string) (*Config, error) {
	if path != "" {
		return ReadFile(path)
	}
	path = DefaultConfig()
	config, err := ReadFile(path)
	if os.IsNotExist(err) {
		config = new(Config)
		config.applyDefaults()
		return config, nil
	}
	return config, err
}

func DefaultConfig() string {
	if env := os.Getenv("PESIGN_CONFIG"); env != "" {
		return env
	}
	return filepath.Join("/etc/pesign", "config.yml")
}

func (config *Config) applyDefaults() {
	if config.CertDir == "" {
		config.CertDir = DefaultCertDir
	}
	if config.Token == "" {
		config.Token = DefaultToken
	}
	if config.Daemon == nil {
		config.Daemon = new(DaemonConfig)
	}
	if config.Daemon.Socket == "" {
		config.Daemon.Socket = DefaultSocket
	}
}

func (config *Config) Path() string {
	return config.path
}
