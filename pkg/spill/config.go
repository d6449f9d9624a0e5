// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package spill

import (
	"os"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/sortexec/pkg/util"
)

type Config struct {
	Dir             string
	FilePrefix      string
	WriteBufferSize int
	//rows per spilled batch
	WriteBatchRows int
	Compression    CompressionKind
	FileCreateMode os.FileMode
}

// NewConfig builds a config from the spill options. Dir defaults to
// the system temp directory.
func NewConfig(opts util.SpillOptions) (*Config, error) {
	kind, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Dir:             opts.Dir,
		FilePrefix:      opts.FilePrefix,
		WriteBufferSize: opts.WriteBufferSize,
		WriteBatchRows:  opts.WriteBatchRows,
		Compression:     kind,
		FileCreateMode:  0o600,
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.FilePrefix == "" {
		cfg.FilePrefix = "spill"
	}
	if cfg.WriteBufferSize <= 0 {
		cfg.WriteBufferSize = 1 << 20
	}
	if cfg.WriteBatchRows <= 0 {
		cfg.WriteBatchRows = util.DefaultVectorSize
	}
	return cfg, nil
}

// Validate checks the directory exists and is writable.
func (cfg *Config) Validate() error {
	stat, err := os.Stat(cfg.Dir)
	if err != nil {
		return errors.Wrapf(err, "spill dir %s", cfg.Dir)
	}
	if !stat.IsDir() {
		return errors.Newf("spill dir %s is not a directory", cfg.Dir)
	}
	return nil
}
