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

package compute

import (
	"cmp"
	"fmt"
	"strings"

	"github.com/govalues/decimal"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/util"
)

type SortLayout struct {
	_columnCount  int
	_keyColumns   []int
	_flags        []CompareFlags
	_logicalTypes []common.LType
	//all columns of the rows
	_payloadTypes []common.LType
}

func NewSortLayout(keys []SortKey, payloadTypes []common.LType) *SortLayout {
	ret := &SortLayout{
		_columnCount:  len(keys),
		_payloadTypes: common.CopyLTypes(payloadTypes...),
	}
	for _, key := range keys {
		util.Assertf(key.Column >= 0 && key.Column < len(payloadTypes),
			"sort key column %d out of range %d", key.Column, len(payloadTypes))
		ret._keyColumns = append(ret._keyColumns, key.Column)
		ret._flags = append(ret._flags, key.Flags)
		ret._logicalTypes = append(ret._logicalTypes, payloadTypes[key.Column])
	}
	return ret
}

func (layout *SortLayout) PayloadTypes() []common.LType {
	return layout._payloadTypes
}

func (layout *SortLayout) String() string {
	sb := strings.Builder{}
	for i := 0; i < layout._columnCount; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("#%d %s %s",
			layout._keyColumns[i],
			layout._logicalTypes[i],
			layout._flags[i]))
	}
	return sb.String()
}

// compareRows compares row lrow of lc with row rrow of rc key by key.
func (layout *SortLayout) compareRows(lc *chunk.Chunk, lrow int, rc *chunk.Chunk, rrow int) int {
	for i, col := range layout._keyColumns {
		ret := compareValue(lc.Data[col], lrow, rc.Data[col], rrow, layout._flags[i])
		if ret != 0 {
			return ret
		}
	}
	return 0
}

// compareValue orders nulls by NullsFirst regardless of the direction.
func compareValue(lvec *chunk.Vector, lrow int, rvec *chunk.Vector, rrow int, flags CompareFlags) int {
	lNull := lvec.IsNull(lrow)
	rNull := rvec.IsNull(rrow)
	if lNull || rNull {
		if lNull && rNull {
			return 0
		}
		if lNull == flags.NullsFirst {
			return -1
		}
		return 1
	}
	lIdx := lvec.RowIndex(lrow)
	rIdx := rvec.RowIndex(rrow)
	ret := 0
	switch data := lvec.Data.(type) {
	case []bool:
		ret = compareBool(data[lIdx], rvec.Data.([]bool)[rIdx])
	case []int32:
		ret = cmp.Compare(data[lIdx], rvec.Data.([]int32)[rIdx])
	case []int64:
		ret = cmp.Compare(data[lIdx], rvec.Data.([]int64)[rIdx])
	case []float64:
		ret = util.CompareFloat(data[lIdx], rvec.Data.([]float64)[rIdx])
	case []string:
		ret = strings.Compare(data[lIdx], rvec.Data.([]string)[rIdx])
	case []decimal.Decimal:
		ret = data[lIdx].Cmp(rvec.Data.([]decimal.Decimal)[rIdx])
	default:
		panic(fmt.Sprintf("usp compare type %s", lvec.Typ()))
	}
	if !flags.Ascending {
		return -ret
	}
	return ret
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a {
		return -1
	}
	return 1
}
