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
	"fmt"
	"strings"

	"github.com/govalues/decimal"

	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/util"
)

// Vector is one column of a chunk.
// Data holds a typed slice chosen by the physical type:
// []bool, []int32, []int64, []float64, []string or []decimal.Decimal.
// A constant vector keeps a single value at index 0.
type Vector struct {
	_PhyFormat PhyFormat
	_Typ       common.LType
	Data       any
	Mask       *util.Bitmap
}

func NewFlatVector(typ common.LType, cap int) *Vector {
	vec := &Vector{
		_PhyFormat: PF_FLAT,
		_Typ:       typ,
		Mask:       &util.Bitmap{},
	}
	vec.Data = makeData(typ.GetInternalType(), cap)
	return vec
}

func NewConstVector(val *Value) *Vector {
	vec := NewFlatVector(val.Typ, 1)
	vec._PhyFormat = PF_CONST
	vec.SetValue(0, val)
	return vec
}

func makeData(pt common.PhyType, cap int) any {
	switch pt {
	case common.BOOL:
		return make([]bool, cap)
	case common.INT32:
		return make([]int32, cap)
	case common.INT64:
		return make([]int64, cap)
	case common.DOUBLE:
		return make([]float64, cap)
	case common.VARCHAR:
		return make([]string, cap)
	case common.DECIMAL:
		return make([]decimal.Decimal, cap)
	case common.NA:
		return []bool(nil)
	default:
		panic(fmt.Sprintf("usp phy type %s", pt))
	}
}

func (vec *Vector) Typ() common.LType {
	return vec._Typ
}

func (vec *Vector) PhyFormat() PhyFormat {
	return vec._PhyFormat
}

// Cap is the number of rows the flat storage can hold.
func (vec *Vector) Cap() int {
	switch data := vec.Data.(type) {
	case []bool:
		return len(data)
	case []int32:
		return len(data)
	case []int64:
		return len(data)
	case []float64:
		return len(data)
	case []string:
		return len(data)
	case []decimal.Decimal:
		return len(data)
	}
	return 0
}

// Reference makes vec share the storage of other.
func (vec *Vector) Reference(other *Vector) {
	util.AssertFunc(vec.Typ().Equal(other.Typ()))
	vec._PhyFormat = other._PhyFormat
	vec.Data = other.Data
	vec.Mask = other.Mask
}

// RowIndex maps a logical row to the storage index.
func (vec *Vector) RowIndex(idx int) int {
	if vec._PhyFormat == PF_CONST {
		return 0
	}
	return idx
}

func (vec *Vector) IsNull(idx int) bool {
	if vec._Typ.Id == common.LTID_NULL {
		return true
	}
	return !vec.Mask.RowIsValid(uint64(vec.RowIndex(idx)))
}

func (vec *Vector) SetNull(idx int, null bool) {
	vec.Mask.Set(uint64(idx), !null)
}

func (vec *Vector) GetValue(idx int) *Value {
	if vec.IsNull(idx) {
		return NullValue(vec.Typ())
	}
	idx = vec.RowIndex(idx)
	ret := &Value{Typ: vec.Typ()}
	switch data := vec.Data.(type) {
	case []bool:
		ret.Bool = data[idx]
	case []int32:
		ret.I64 = int64(data[idx])
	case []int64:
		ret.I64 = data[idx]
	case []float64:
		ret.F64 = data[idx]
	case []string:
		ret.Str = data[idx]
	case []decimal.Decimal:
		ret.Dec = data[idx]
	default:
		panic("usp")
	}
	return ret
}

func (vec *Vector) SetValue(idx int, val *Value) {
	util.AssertFunc(vec._PhyFormat.IsFlat() || idx == 0)
	if val.IsNull {
		vec.SetNull(idx, true)
		return
	}
	vec.SetNull(idx, false)
	switch data := vec.Data.(type) {
	case []bool:
		data[idx] = val.Bool
	case []int32:
		data[idx] = int32(val.I64)
	case []int64:
		data[idx] = val.I64
	case []float64:
		data[idx] = val.F64
	case []string:
		data[idx] = val.Str
	case []decimal.Decimal:
		data[idx] = val.Dec
	default:
		panic("usp")
	}
}

// CopyRow copies row srcIdx of src into row dstIdx of dst.
// dst must be flat.
func CopyRow(src *Vector, srcIdx int, dst *Vector, dstIdx int) {
	if src.IsNull(srcIdx) {
		dst.SetNull(dstIdx, true)
		return
	}
	dst.SetNull(dstIdx, false)
	srcIdx = src.RowIndex(srcIdx)
	switch data := dst.Data.(type) {
	case []bool:
		data[dstIdx] = src.Data.([]bool)[srcIdx]
	case []int32:
		data[dstIdx] = src.Data.([]int32)[srcIdx]
	case []int64:
		data[dstIdx] = src.Data.([]int64)[srcIdx]
	case []float64:
		data[dstIdx] = src.Data.([]float64)[srcIdx]
	case []string:
		data[dstIdx] = src.Data.([]string)[srcIdx]
	case []decimal.Decimal:
		data[dstIdx] = src.Data.([]decimal.Decimal)[srcIdx]
	default:
		panic("usp")
	}
}

// Flatten turns a constant vector into a flat one of count rows.
func (vec *Vector) Flatten(count int) {
	if vec._PhyFormat.IsFlat() {
		return
	}
	val := vec.GetValue(0)
	vec._PhyFormat = PF_FLAT
	vec.Data = makeData(vec._Typ.GetInternalType(), count)
	vec.Mask = &util.Bitmap{}
	for i := 0; i < count; i++ {
		vec.SetValue(i, val)
	}
}

// SizeInBytes estimates the memory held by the first count rows.
func (vec *Vector) SizeInBytes(count int) int64 {
	if vec._PhyFormat.IsConst() {
		count = 1
	}
	sz := int64(vec._Typ.GetInternalType().Size() * count)
	if strs, ok := vec.Data.([]string); ok {
		for i := 0; i < count && i < len(strs); i++ {
			sz += int64(len(strs[i]))
		}
	}
	sz += int64(util.EntryCount(count))
	return sz
}

func (vec *Vector) Reset() {
	vec.Mask = &util.Bitmap{}
}

func (vec *Vector) String(rowCount int) string {
	sb := strings.Builder{}
	for i := 0; i < rowCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(vec.GetValue(i).String())
	}
	return sb.String()
}

// NewVectorFromValues builds a flat vector holding vals.
func NewVectorFromValues(typ common.LType, vals ...*Value) *Vector {
	vec := NewFlatVector(typ, max(len(vals), 1))
	for i, val := range vals {
		vec.SetValue(i, val)
	}
	return vec
}
