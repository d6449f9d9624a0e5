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
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/util"
)

const (
	FaultSpillWrite = "spill.write"
	FaultSpillRead  = "spill.read"
)

// frameHeaderSize is [u32 raw length][u32 payload length][u8 codec].
const frameHeaderSize = 9

// Writer writes one sorted run. Every batch becomes one frame.
type Writer struct {
	cfg   *Config
	codec codec
	path  string
	file  *os.File
	bufw  *bufio.Writer

	serial  *util.BufferSerialize
	payload []byte
	header  [frameHeaderSize]byte

	rows       uint64
	batches    uint64
	bytes      uint64
	inputBytes uint64
	writeTime  time.Duration
	closed     bool
}

func NewWriter(cfg *Config) (*Writer, error) {
	cd, err := getCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s-%s.spill", cfg.FilePrefix, uuid.New().String())
	path := filepath.Join(cfg.Dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, cfg.FileCreateMode)
	if err != nil {
		return nil, errors.Wrapf(err, "create spill file %s", path)
	}
	return &Writer{
		cfg:    cfg,
		codec:  cd,
		path:   path,
		file:   file,
		bufw:   bufio.NewWriterSize(file, cfg.WriteBufferSize),
		serial: util.NewBufferSerialize(),
	}, nil
}

func (w *Writer) Path() string {
	return w.path
}

func (w *Writer) Rows() uint64 {
	return w.rows
}

// Write appends the rows of c as one frame.
func (w *Writer) Write(c *chunk.Chunk) error {
	util.AssertFunc(!w.closed)
	if c.Card() == 0 {
		return nil
	}
	start := time.Now()
	defer func() {
		w.writeTime += time.Since(start)
	}()
	if err := util.Inject(util.FAULTS_SCOPE_SPILL, FaultSpillWrite); err != nil {
		return errors.Wrapf(err, "write spill file %s", w.path)
	}
	w.serial.Reset()
	err := c.Serialize(w.serial)
	if err != nil {
		return errors.Wrapf(err, "serialize batch for %s", w.path)
	}
	raw := w.serial.Bytes()
	w.payload = w.codec.compress(w.payload[:0], raw)

	binary.LittleEndian.PutUint32(w.header[0:4], uint32(len(raw)))
	binary.LittleEndian.PutUint32(w.header[4:8], uint32(len(w.payload)))
	w.header[8] = uint8(w.cfg.Compression)
	if _, err = w.bufw.Write(w.header[:]); err != nil {
		return errors.Wrapf(err, "write spill file %s", w.path)
	}
	if _, err = w.bufw.Write(w.payload); err != nil {
		return errors.Wrapf(err, "write spill file %s", w.path)
	}
	w.rows += uint64(c.Card())
	w.batches++
	w.bytes += uint64(frameHeaderSize + len(w.payload))
	w.inputBytes += uint64(len(raw))
	return nil
}

// Finish flushes and closes the file. The returned run is immutable.
func (w *Writer) Finish() (*Run, error) {
	util.AssertFunc(!w.closed)
	w.closed = true
	start := time.Now()
	err := w.bufw.Flush()
	if err == nil {
		err = w.file.Close()
	} else {
		_ = w.file.Close()
	}
	w.writeTime += time.Since(start)
	if err != nil {
		_ = os.Remove(w.path)
		return nil, errors.Wrapf(err, "finish spill file %s", w.path)
	}
	return &Run{
		Path:        w.path,
		Rows:        w.rows,
		Batches:     w.batches,
		Bytes:       w.bytes,
		InputBytes:  w.inputBytes,
		WriteTime:   w.writeTime,
		Compression: w.cfg.Compression,
	}, nil
}

// Abort closes and removes the partial file.
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.file.Close()
	err := os.Remove(w.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove spill file %s", w.path)
	}
	return nil
}
