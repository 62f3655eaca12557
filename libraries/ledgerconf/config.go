// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledgerconf reads the YAML configuration of the ledger binary.
package ledgerconf

import (
	"encoding/hex"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/dolthub/ledger/store/d"
)

const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// ByteSize is a size written either as a number of bytes or as a human
// string such as "64MiB".
type ByteSize uint64

func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return errors.Wrapf(err, "size %q", s)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

type StorageConfig struct {
	// Backend is one of memory, leveldb, bolt and badger.
	Backend string `yaml:"backend" default:"leveldb"`
	Path    string `yaml:"path" default:"ledger-data"`
}

type EncryptionConfig struct {
	// KeyFile holds the master key, raw or hex encoded.
	KeyFile string `yaml:"key_file,omitempty"`
}

type CloudConfig struct {
	URL          string        `yaml:"url,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
}

type S3Config struct {
	Bucket string `yaml:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
	Region string `yaml:"region" default:"us-east-1"`
	// Auth is KEY:SECRET. Empty uses the default AWS credential chain.
	Auth string `yaml:"auth,omitempty"`
}

type CloudServerConfig struct {
	Listen        string   `yaml:"listen" default:":8750"`
	Backend       string   `yaml:"backend" default:"leveldb"`
	Path          string   `yaml:"path" default:"ledger-cloud"`
	MaxObjectSize ByteSize `yaml:"max_object_size" default:"67108864"`
	S3            S3Config `yaml:"s3"`
}

type P2PConfig struct {
	// Name identifies the device to its peers. Required with Listen or
	// Peers.
	Name           string        `yaml:"name,omitempty"`
	Listen         string        `yaml:"listen,omitempty"`
	Peers          []string      `yaml:"peers,omitempty"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"10s"`
	MinReconnect   time.Duration `yaml:"min_reconnect" default:"100ms"`
	MaxReconnect   time.Duration `yaml:"max_reconnect" default:"10s"`
}

// Enabled reports whether the device joins a mesh.
func (c P2PConfig) Enabled() bool {
	return c.Listen != "" || len(c.Peers) > 0
}

type SyncConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" default:"100ms"`
	MaxInterval     time.Duration `yaml:"max_interval" default:"10s"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" default:"1m"`
	Concurrency     int           `yaml:"concurrency" default:"8"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

// Apply sets the level and formatter of |l|.
func (c LogConfig) Apply(l *logrus.Logger) error {
	lvl, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	switch c.Format {
	case LogFormatText:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case LogFormatJSON:
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", c.Format)
	}
	return nil
}

type MetricsConfig struct {
	Listen string            `yaml:"listen,omitempty"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// Config is the whole configuration file.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Encryption  EncryptionConfig  `yaml:"encryption"`
	Cloud       CloudConfig       `yaml:"cloud"`
	CloudServer CloudServerConfig `yaml:"cloud_server"`
	P2P         P2PConfig         `yaml:"p2p"`
	Sync        SyncConfig        `yaml:"sync"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	d.PanicIfError(defaults.Set(&cfg))
	return &cfg
}

// Parse reads a YAML configuration. Missing fields keep their defaults;
// unknown fields are an error.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, err
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads the configuration at |path|.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

// Validate checks the fields that depend on each other.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != LogFormatText && c.Log.Format != LogFormatJSON {
		return errors.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	if c.P2P.Enabled() && c.P2P.Name == "" {
		return errors.New("p2p.name is required to join a mesh")
	}
	if c.Cloud.URL != "" && c.Encryption.KeyFile == "" {
		return errors.New("encryption.key_file is required with cloud.url")
	}
	if c.Sync.Concurrency <= 0 {
		return errors.Errorf("sync.concurrency must be positive, got %d", c.Sync.Concurrency)
	}
	return nil
}

// String renders the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// MasterKeySize is the size of a master key.
const MasterKeySize = 32

// LoadMasterKey reads the master key at |path|, either MasterKeySize raw
// bytes or their hex encoding.
func LoadMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading key %s", path)
	}
	if len(data) == MasterKeySize {
		return data, nil
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(key) != MasterKeySize {
		return nil, errors.Errorf("key %s: want %d raw or hex encoded bytes", path, MasterKeySize)
	}
	return key, nil
}
