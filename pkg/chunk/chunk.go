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
	"encoding/csv"

	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/util"
)

type Chunk struct {
	Data  []*Vector
	Count int
	_Cap  int
}

func NewChunk(types []common.LType, cap int) *Chunk {
	c := &Chunk{}
	c.Init(types, cap)
	return c
}

func (c *Chunk) Init(types []common.LType, cap int) {
	c._Cap = cap
	c.Data = nil
	for _, lType := range types {
		c.Data = append(c.Data, NewFlatVector(lType, c._Cap))
	}
}

func (c *Chunk) Reset() {
	if len(c.Data) == 0 {
		return
	}
	for _, vec := range c.Data {
		vec.Reset()
	}
	c.Count = 0
}

func (c *Chunk) Cap() int {
	return c._Cap
}

func (c *Chunk) SetCap(cap int) {
	c._Cap = cap
}

func (c *Chunk) SetCard(count int) {
	util.AssertFunc(count <= c._Cap)
	c.Count = count
}

func (c *Chunk) Card() int {
	if c == nil {
		return 0
	}
	return c.Count
}

func (c *Chunk) ColumnCount() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

func (c *Chunk) Types() []common.LType {
	ret := make([]common.LType, len(c.Data))
	for i, vec := range c.Data {
		ret[i] = vec.Typ()
	}
	return ret
}

func (c *Chunk) Reference(other *Chunk) {
	util.AssertFunc(other.ColumnCount() <= c.ColumnCount())
	c.SetCap(other.Cap())
	c.SetCard(other.Card())
	for i := 0; i < other.ColumnCount(); i++ {
		c.Data[i].Reference(other.Data[i])
	}
}

// AppendRow copies row srcRow of src to the end of c.
func (c *Chunk) AppendRow(src *Chunk, srcRow int) {
	util.AssertFunc(c.Count < c._Cap)
	for i, vec := range c.Data {
		CopyRow(src.Data[i], srcRow, vec, c.Count)
	}
	c.Count++
}

func (c *Chunk) Flatten() {
	for i := 0; i < c.ColumnCount(); i++ {
		c.Data[i].Flatten(c.Card())
	}
}

// SizeInBytes estimates the memory held by the rows of c.
func (c *Chunk) SizeInBytes() int64 {
	sz := int64(0)
	for _, vec := range c.Data {
		sz += vec.SizeInBytes(c.Card())
	}
	return sz
}

// Row returns the values of row i.
func (c *Chunk) Row(i int) []*Value {
	ret := make([]*Value, c.ColumnCount())
	for j, vec := range c.Data {
		ret[j] = vec.GetValue(i)
	}
	return ret
}

// SaveToCsv writes the rows of c as csv records.
func (c *Chunk) SaveToCsv(writer *csv.Writer) error {
	rowCnt := c.Card()
	colCnt := c.ColumnCount()
	row := make([]string, colCnt)
	for i := 0; i < rowCnt; i++ {
		for j := 0; j < colCnt; j++ {
			val := c.Data[j].GetValue(i)
			if val.IsNull {
				row[j] = ""
			} else {
				row[j] = val.String()
			}
		}
		err := writer.Write(row)
		if err != nil {
			return err
		}
	}
	return nil
}
