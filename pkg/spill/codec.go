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
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionSnappy
	CompressionZstd
)

func (kind CompressionKind) String() string {
	switch kind {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	}
	return "unknown"
}

func ParseCompression(s string) (CompressionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return CompressionNone, errors.Newf("unsupported spill compression %q", s)
}

type codec interface {
	compress(dst, src []byte) []byte
	decompress(dst, src []byte) ([]byte, error)
}

type noneCodec struct{}
type snappyCodec struct{}
type zstdCodec struct{}

func (noneCodec) compress(dst, src []byte) []byte {
	return append(dst[:0], src...)
}

func (noneCodec) decompress(dst, src []byte) ([]byte, error) {
	return append(dst[:0], src...), nil
}

func (snappyCodec) compress(dst, src []byte) []byte {
	return snappy.Encode(dst, src)
}

func (snappyCodec) decompress(dst, src []byte) ([]byte, error) {
	return snappy.Decode(dst, src)
}

var (
	zstdEncoder     *zstd.Encoder
	zstdDecoder     *zstd.Decoder
	zstdEncoderOnce sync.Once
	zstdDecoderOnce sync.Once
)

// EncodeAll and DecodeAll are safe for concurrent use, so one
// encoder and one decoder serve every run.
func getZstdEncoder() *zstd.Encoder {
	zstdEncoderOnce.Do(func() {
		zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	})
	return zstdEncoder
}

func getZstdDecoder() *zstd.Decoder {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, _ = zstd.NewReader(nil)
	})
	return zstdDecoder
}

func (zstdCodec) compress(dst, src []byte) []byte {
	return getZstdEncoder().EncodeAll(src, dst[:0])
}

func (zstdCodec) decompress(dst, src []byte) ([]byte, error) {
	return getZstdDecoder().DecodeAll(src, dst[:0])
}

func getCodec(kind CompressionKind) (codec, error) {
	switch kind {
	case CompressionNone:
		return noneCodec{}, nil
	case CompressionSnappy:
		return snappyCodec{}, nil
	case CompressionZstd:
		return zstdCodec{}, nil
	}
	return nil, errors.Newf("unsupported spill codec %d", kind)
}
