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
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/util"
)

// Run is a closed spill file holding rows in sorted order.
type Run struct {
	Path        string
	Rows        uint64
	Batches     uint64
	Bytes       uint64
	InputBytes  uint64
	WriteTime   time.Duration
	Compression CompressionKind
}

func (run *Run) Stats() Stats {
	return Stats{
		SpilledRuns:       1,
		SpilledFiles:      1,
		SpilledRows:       run.Rows,
		SpilledBytes:      run.Bytes,
		SpilledInputBytes: run.InputBytes,
		SpillWriteTime:    run.WriteTime,
	}
}

func (run *Run) Open(bufSize int) (*RunReader, error) {
	file, err := os.Open(run.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open spill file %s", run.Path)
	}
	if bufSize <= 0 {
		bufSize = 1 << 16
	}
	return &RunReader{
		run:  run,
		file: file,
		bufr: bufio.NewReaderSize(file, bufSize),
	}, nil
}

// Remove deletes the file. A missing file is not an error.
func (run *Run) Remove() error {
	err := os.Remove(run.Path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove spill file %s", run.Path)
	}
	return nil
}

// RunReader returns the batches of a run in the order they were
// written.
type RunReader struct {
	run     *Run
	file    *os.File
	bufr    *bufio.Reader
	header  [frameHeaderSize]byte
	payload []byte
	raw     []byte

	readBytes uint64
	readTime  time.Duration
	closed    bool
}

// Next returns the next batch, or io.EOF after the last one.
func (rr *RunReader) Next() (*chunk.Chunk, error) {
	util.AssertFunc(!rr.closed)
	start := time.Now()
	defer func() {
		rr.readTime += time.Since(start)
	}()
	if err := util.Inject(util.FAULTS_SCOPE_SPILL, FaultSpillRead); err != nil {
		return nil, errors.Wrapf(err, "read spill file %s", rr.run.Path)
	}
	_, err := io.ReadFull(rr.bufr, rr.header[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, errors.Wrapf(err, "read frame header of %s", rr.run.Path)
	}
	rawLen := binary.LittleEndian.Uint32(rr.header[0:4])
	payloadLen := binary.LittleEndian.Uint32(rr.header[4:8])
	cd, err := getCodec(CompressionKind(rr.header[8]))
	if err != nil {
		return nil, errors.Wrapf(err, "spill file %s", rr.run.Path)
	}
	if cap(rr.payload) < int(payloadLen) {
		rr.payload = make([]byte, payloadLen)
	}
	rr.payload = rr.payload[:payloadLen]
	if _, err = io.ReadFull(rr.bufr, rr.payload); err != nil {
		return nil, errors.Wrapf(noEOF(err), "read frame of %s", rr.run.Path)
	}
	rr.raw, err = cd.decompress(rr.raw[:0], rr.payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress frame of %s", rr.run.Path)
	}
	if len(rr.raw) != int(rawLen) {
		return nil, errors.Newf("corrupted frame in %s: expect %d bytes, got %d",
			rr.run.Path, rawLen, len(rr.raw))
	}
	rr.readBytes += uint64(frameHeaderSize) + uint64(payloadLen)

	ret := &chunk.Chunk{}
	err = ret.Deserialize(util.NewBytesDeserialize(rr.raw))
	if err != nil {
		return nil, errors.Wrapf(noEOF(err), "decode frame of %s", rr.run.Path)
	}
	return ret, nil
}

func (rr *RunReader) ReadBytes() uint64 {
	return rr.readBytes
}

func (rr *RunReader) ReadTime() time.Duration {
	return rr.readTime
}

func (rr *RunReader) Close() error {
	if rr.closed {
		return nil
	}
	rr.closed = true
	return rr.file.Close()
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
