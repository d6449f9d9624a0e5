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

package chunk

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/govalues/decimal"

	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/util"
)

// Serialization and deserialization methods for Vector.
// Constant vectors are written flat.
func (vec *Vector) Serialize(count int, serial util.Serialize) error {
	writeValidity := false
	for i := 0; i < count; i++ {
		if vec.IsNull(i) {
			writeValidity = true
			break
		}
	}
	err := util.Write[bool](writeValidity, serial)
	if err != nil {
		return err
	}
	if writeValidity {
		flatMask := &util.Bitmap{}
		flatMask.Init(count)
		for i := 0; i < count; i++ {
			flatMask.Set(uint64(i), !vec.IsNull(i))
		}
		err = serial.WriteData(flatMask.Data(), flatMask.Bytes(count))
		if err != nil {
			return err
		}
	}

	switch vec.Typ().GetInternalType() {
	case common.NA:
	case common.BOOL:
		return writeFixed(gather[bool](vec, count), serial)
	case common.INT32:
		return writeFixed(gather[int32](vec, count), serial)
	case common.INT64:
		return writeFixed(gather[int64](vec, count), serial)
	case common.DOUBLE:
		return writeFixed(gather[float64](vec, count), serial)
	case common.VARCHAR:
		strSlice := vec.Data.([]string)
		for i := 0; i < count; i++ {
			s := ""
			if !vec.IsNull(i) {
				s = strSlice[vec.RowIndex(i)]
			}
			err = util.WriteString(s, serial)
			if err != nil {
				return err
			}
		}
	case common.DECIMAL:
		decSlice := vec.Data.([]decimal.Decimal)
		for i := 0; i < count; i++ {
			s := ""
			if !vec.IsNull(i) {
				s = decSlice[vec.RowIndex(i)].String()
			}
			err = util.WriteString(s, serial)
			if err != nil {
				return err
			}
		}
	default:
		panic("usp")
	}
	return nil
}

func gather[T any](vec *Vector, count int) []T {
	data := vec.Data.([]T)
	if vec.PhyFormat().IsFlat() {
		return data[:count]
	}
	ret := make([]T, count)
	for i := range ret {
		ret[i] = data[0]
	}
	return ret
}

func writeFixed[T util.FixedSize](data []T, serial util.Serialize) error {
	if len(data) == 0 {
		return nil
	}
	buf, err := binary.Append(nil, binary.LittleEndian, data)
	if err != nil {
		return err
	}
	return serial.WriteData(buf, len(buf))
}

func readFixed[T util.FixedSize](data []T, deserial util.Deserialize) error {
	if len(data) == 0 {
		return nil
	}
	sz := binary.Size(data)
	buf := make([]byte, sz)
	err := deserial.ReadData(buf, sz)
	if err != nil {
		return err
	}
	_, err = binary.Decode(buf, binary.LittleEndian, data)
	return err
}

func (vec *Vector) Deserialize(count int, deserial util.Deserialize) error {
	util.AssertFunc(vec.PhyFormat().IsFlat())
	vec.Mask.Reset()
	hasMask := false
	err := util.Read[bool](&hasMask, deserial)
	if err != nil {
		return err
	}
	if hasMask {
		vec.Mask.Init(count)
		err = deserial.ReadData(vec.Mask.Data(), vec.Mask.Bytes(count))
		if err != nil {
			return err
		}
	}

	switch vec.Typ().GetInternalType() {
	case common.NA:
	case common.BOOL:
		return readFixed(vec.Data.([]bool)[:count], deserial)
	case common.INT32:
		return readFixed(vec.Data.([]int32)[:count], deserial)
	case common.INT64:
		return readFixed(vec.Data.([]int64)[:count], deserial)
	case common.DOUBLE:
		return readFixed(vec.Data.([]float64)[:count], deserial)
	case common.VARCHAR:
		strSlice := vec.Data.([]string)
		for i := 0; i < count; i++ {
			strSlice[i], err = util.ReadString(deserial)
			if err != nil {
				return err
			}
		}
	case common.DECIMAL:
		decSlice := vec.Data.([]decimal.Decimal)
		scale := vec.Typ().Scale
		for i := 0; i < count; i++ {
			s, err := util.ReadString(deserial)
			if err != nil {
				return err
			}
			if s == "" {
				continue
			}
			decSlice[i], err = decimal.ParseExact(s, scale)
			if err != nil {
				return err
			}
		}
	default:
		panic("usp")
	}
	return nil
}

func (c *Chunk) Serialize(serial util.Serialize) error {
	//save row count
	err := util.Write[uint32](uint32(c.Card()), serial)
	if err != nil {
		return err
	}
	//save column count
	err = util.Write[uint32](uint32(c.ColumnCount()), serial)
	if err != nil {
		return err
	}
	//save column types
	for i := 0; i < c.ColumnCount(); i++ {
		err = c.Data[i].Typ().Serialize(serial)
		if err != nil {
			return err
		}
	}
	//save column data
	for i := 0; i < c.ColumnCount(); i++ {
		err = c.Data[i].Serialize(c.Card(), serial)
		if err != nil {
			return err
		}
	}
	return nil
}

// Deserialize fills c from deserial. A clean end of stream leaves c
// empty and returns io.EOF.
func (c *Chunk) Deserialize(deserial util.Deserialize) error {
	//read row count
	rowCnt := uint32(0)
	err := util.Read[uint32](&rowCnt, deserial)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return err
	}
	//read column count
	colCnt := uint32(0)
	err = util.Read[uint32](&colCnt, deserial)
	if err != nil {
		return noEOF(err)
	}
	//read column types
	typs := make([]common.LType, colCnt)
	for i := uint32(0); i < colCnt; i++ {
		typs[i], err = common.DeserializeLType(deserial)
		if err != nil {
			return noEOF(err)
		}
	}
	c.Init(typs, max(int(rowCnt), 1))
	c.SetCard(int(rowCnt))
	//read column data
	for i := uint32(0); i < colCnt; i++ {
		err = c.Data[i].Deserialize(int(rowCnt), deserial)
		if err != nil {
			return noEOF(err)
		}
	}
	return nil
}

// noEOF reports a truncated chunk as an unexpected EOF.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
