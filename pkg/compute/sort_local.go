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
	"slices"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/util"
)

// rowRef locates one row in the batches of a LocalSort.
type rowRef struct {
	batch int32
	row   int32
}

const rowRefSize = 8

// LocalSort keeps the input batches by reference and sorts row
// references instead of moving rows.
type LocalSort struct {
	_layout   *SortLayout
	_batches  []*chunk.Chunk
	_refs     []rowRef
	_sorted   bool
	_memUsage int64
}

func NewLocalSort(layout *SortLayout) *LocalSort {
	return &LocalSort{
		_layout: layout,
	}
}

// EstimateSize is the memory that SinkChunk accounts for c.
func (ls *LocalSort) EstimateSize(c *chunk.Chunk) int64 {
	return c.SizeInBytes() + int64(c.Card()*rowRefSize)
}

// SinkChunk appends the rows of c. c must not be modified afterwards.
func (ls *LocalSort) SinkChunk(c *chunk.Chunk) {
	if c.Card() == 0 {
		return
	}
	bIdx := int32(len(ls._batches))
	ls._batches = append(ls._batches, c)
	for i := 0; i < c.Card(); i++ {
		ls._refs = append(ls._refs, rowRef{batch: bIdx, row: int32(i)})
	}
	ls._sorted = false
	ls._memUsage += ls.EstimateSize(c)
}

func (ls *LocalSort) compareRefs(a, b rowRef) int {
	return ls._layout.compareRows(
		ls._batches[a.batch], int(a.row),
		ls._batches[b.batch], int(b.row))
}

// Sort orders the rows stably. Equal rows keep the input order.
func (ls *LocalSort) Sort() {
	if ls._sorted {
		return
	}
	slices.SortStableFunc(ls._refs, ls.compareRefs)
	ls._sorted = true
}

func (ls *LocalSort) Count() int {
	return len(ls._refs)
}

func (ls *LocalSort) MemoryUsage() int64 {
	return ls._memUsage
}

// row returns the batch and row index of the i-th sorted row.
func (ls *LocalSort) row(i int) (*chunk.Chunk, int) {
	ref := ls._refs[i]
	return ls._batches[ref.batch], int(ref.row)
}

func (ls *LocalSort) Reset() {
	clear(ls._batches)
	ls._batches = ls._batches[:0]
	ls._refs = ls._refs[:0]
	ls._sorted = false
	ls._memUsage = 0
}

func (ls *LocalSort) NewScanner() *PayloadScanner {
	util.AssertFunc(ls._sorted || ls.Count() <= 1)
	return &PayloadScanner{
		_sort:       ls,
		_totalCount: ls.Count(),
	}
}
