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
	"io"
	"testing"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/util"
)

func makeTestChunk(t *testing.T) *Chunk {
	typs := []common.LType{
		common.IntegerType(),
		common.VarcharType(),
		common.DoubleType(),
		common.DecimalType(10, 2),
		common.BooleanType(),
		common.DateType(),
	}
	c := NewChunk(typs, 4)
	d1, err := decimal.ParseExact("12.50", 2)
	require.NoError(t, err)
	rows := [][]*Value{
		{IntegerValue(3), VarcharValue("c"), DoubleValue(1.5), DecimalValue(typs[3], d1), BooleanValue(true), DateValue(10)},
		{NullValue(typs[0]), VarcharValue(""), NullValue(typs[2]), NullValue(typs[3]), BooleanValue(false), DateValue(-1)},
		{IntegerValue(-7), NullValue(typs[1]), DoubleValue(-0.25), DecimalValue(typs[3], d1), NullValue(typs[4]), NullValue(typs[5])},
	}
	for i, row := range rows {
		for j, val := range row {
			c.Data[j].SetValue(i, val)
		}
	}
	c.SetCard(len(rows))
	return c
}

func Test_chunkSerialize(t *testing.T) {
	c := makeTestChunk(t)
	serial := util.NewBufferSerialize()
	require.NoError(t, c.Serialize(serial))
	require.NoError(t, c.Serialize(serial))

	deserial := util.NewBytesDeserialize(serial.Bytes())
	for k := 0; k < 2; k++ {
		got := &Chunk{}
		require.NoError(t, got.Deserialize(deserial))
		require.Equal(t, c.Card(), got.Card())
		require.Equal(t, c.ColumnCount(), got.ColumnCount())
		for i := 0; i < c.Card(); i++ {
			want := c.Row(i)
			have := got.Row(i)
			for j := range want {
				assert.Equal(t, want[j].IsNull, have[j].IsNull, "row %d col %d", i, j)
				assert.Equal(t, want[j].String(), have[j].String(), "row %d col %d", i, j)
			}
		}
	}
	got := &Chunk{}
	assert.ErrorIs(t, got.Deserialize(deserial), io.EOF)
}

func Test_chunkSerializeConst(t *testing.T) {
	c := NewChunk([]common.LType{common.BigintType()}, 3)
	c.Data[0] = NewConstVector(BigintValue(42))
	c.SetCard(3)

	serial := util.NewBufferSerialize()
	require.NoError(t, c.Serialize(serial))
	got := &Chunk{}
	require.NoError(t, got.Deserialize(util.NewBytesDeserialize(serial.Bytes())))
	require.Equal(t, 3, got.Card())
	assert.True(t, got.Data[0].PhyFormat().IsFlat())
	for i := 0; i < 3; i++ {
		assert.Equal(t, int64(42), got.Data[0].GetValue(i).I64)
	}
}

func Test_chunkDeserializeTruncated(t *testing.T) {
	c := makeTestChunk(t)
	serial := util.NewBufferSerialize()
	require.NoError(t, c.Serialize(serial))
	data := serial.Bytes()
	got := &Chunk{}
	err := got.Deserialize(util.NewBytesDeserialize(data[:len(data)-3]))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func Test_appendRow(t *testing.T) {
	src := makeTestChunk(t)
	dst := NewChunk(src.Types(), 2)
	dst.AppendRow(src, 2)
	dst.AppendRow(src, 0)
	assert.Equal(t, 2, dst.Card())
	assert.Equal(t, int64(-7), dst.Data[0].GetValue(0).I64)
	assert.True(t, dst.Data[1].IsNull(0))
	assert.Equal(t, "c", dst.Data[1].GetValue(1).Str)
	assert.Panics(t, func() {
		dst.AppendRow(src, 1)
	})
}

func Test_flatten(t *testing.T) {
	vec := NewConstVector(VarcharValue("x"))
	assert.Equal(t, int64(common.VARCHAR.Size()+1+1), vec.SizeInBytes(100))
	vec.Flatten(5)
	assert.True(t, vec.PhyFormat().IsFlat())
	assert.Equal(t, "x, x, x, x, x", vec.String(5))

	nullConst := NewConstVector(NullValue(common.IntegerType()))
	for i := 0; i < 10; i++ {
		assert.True(t, nullConst.IsNull(i))
	}
}

func Test_parseValue(t *testing.T) {
	val, err := ParseValue("2024-03-01", common.DateType())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", val.String())

	val, err = ParseValue("NULL", common.BigintType())
	require.NoError(t, err)
	assert.True(t, val.IsNull)

	val, err = ParseValue("1.5", common.DecimalType(10, 3))
	require.NoError(t, err)
	assert.Equal(t, "1.500", val.String())

	_, err = ParseValue("abc", common.IntegerType())
	assert.Error(t, err)

	val, err = FromAny(int64(1234), common.DecimalType(10, 2))
	require.NoError(t, err)
	assert.Equal(t, "12.34", val.String())

	_, err = FromAny("s", common.BigintType())
	assert.Error(t, err)
}
