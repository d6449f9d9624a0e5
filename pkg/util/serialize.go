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

package util

import (
	"bytes"
	"encoding/binary"
	"io"
)

type Serialize interface {
	WriteData(buffer []byte, len int) error
	Close() error
}

type Deserialize interface {
	ReadData(buffer []byte, len int) error
	Close() error
}

type FixedSize interface {
	~bool | ~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 |
		~int64 | ~uint64 | ~float32 | ~float64
}

func Write[T FixedSize](value T, serial Serialize) error {
	var scratch [8]byte
	buf, err := binary.Append(scratch[:0], binary.LittleEndian, value)
	if err != nil {
		return err
	}
	return serial.WriteData(buf, len(buf))
}

func Read[T FixedSize](value *T, deserial Deserialize) error {
	var scratch [8]byte
	cnt := binary.Size(*value)
	buf := scratch[:cnt]
	err := deserial.ReadData(buf, cnt)
	if err != nil {
		return err
	}
	_, err = binary.Decode(buf, binary.LittleEndian, value)
	return err
}

func WriteString(s string, serial Serialize) error {
	err := Write[uint32](uint32(len(s)), serial)
	if err != nil {
		return err
	}
	if len(s) > 0 {
		return serial.WriteData([]byte(s), len(s))
	}
	return nil
}

func ReadString(deserial Deserialize) (string, error) {
	var l uint32
	err := Read[uint32](&l, deserial)
	if err != nil {
		return "", err
	}
	if l == 0 {
		return "", nil
	}
	buf := make([]byte, l)
	err = deserial.ReadData(buf, int(l))
	if err != nil {
		return "", err
	}
	return string(buf), err
}

// BufferSerialize collects serialized bytes in memory.
type BufferSerialize struct {
	buf bytes.Buffer
}

func NewBufferSerialize() *BufferSerialize {
	return &BufferSerialize{}
}

func (serial *BufferSerialize) WriteData(buffer []byte, len int) error {
	_, err := serial.buf.Write(buffer[:len])
	return err
}

func (serial *BufferSerialize) Bytes() []byte {
	return serial.buf.Bytes()
}

func (serial *BufferSerialize) Len() int {
	return serial.buf.Len()
}

func (serial *BufferSerialize) Reset() {
	serial.buf.Reset()
}

func (serial *BufferSerialize) Close() error {
	return nil
}

var _ Serialize = (*BufferSerialize)(nil)

// ReaderDeserialize reads exactly the requested bytes from an io.Reader.
type ReaderDeserialize struct {
	reader io.Reader
}

func NewBytesDeserialize(data []byte) *ReaderDeserialize {
	return &ReaderDeserialize{reader: bytes.NewReader(data)}
}

func (deserial *ReaderDeserialize) ReadData(buffer []byte, len int) error {
	_, err := io.ReadFull(deserial.reader, buffer[:len])
	return err
}

func (deserial *ReaderDeserialize) Close() error {
	return nil
}

var _ Deserialize = (*ReaderDeserialize)(nil)
