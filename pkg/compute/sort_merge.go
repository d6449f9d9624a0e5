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
	"context"
	"io"
	"time"

	"github.com/liyue201/gostl/ds/priorityqueue"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/spill"
)

// mergeCursor is the head of one sorted source: a spill run or the
// sorted rows still in memory.
type mergeCursor struct {
	//source order, breaks ties
	_idx int

	_reader *spill.RunReader
	_batch  *chunk.Chunk
	_row    int

	_local *LocalSort
	_pos   int
}

func (cur *mergeCursor) head() (*chunk.Chunk, int) {
	if cur._local != nil {
		return cur._local.row(cur._pos)
	}
	return cur._batch, cur._row
}

// advance moves to the next row. It returns false once the source is
// exhausted.
func (cur *mergeCursor) advance() (bool, error) {
	if cur._local != nil {
		cur._pos++
		return cur._pos < cur._local.Count(), nil
	}
	cur._row++
	for cur._batch == nil || cur._row >= cur._batch.Card() {
		next, err := cur._reader.Next()
		if err != nil {
			if err == io.EOF {
				cur._batch = nil
				return false, nil
			}
			return false, err
		}
		cur._batch = next
		cur._row = 0
	}
	return true, nil
}

// MergeSorter merges the spill runs and the in-memory remainder.
// Equal rows come out in source order: runs in creation order, memory
// last.
type MergeSorter struct {
	_layout  *SortLayout
	_queue   *priorityqueue.PriorityQueue[*mergeCursor]
	_readers []*spill.RunReader
	_sources int
}

func NewMergeSorter(
	ctx context.Context,
	layout *SortLayout,
	runs *spill.RunSet,
	local *LocalSort,
	bufSize int) (*MergeSorter, error) {
	readers, err := runs.OpenAll(ctx, bufSize)
	if err != nil {
		return nil, err
	}
	ms := &MergeSorter{
		_layout:  layout,
		_readers: readers,
	}
	ms._queue = priorityqueue.New[*mergeCursor](ms.compareCursor)

	for i, rr := range readers {
		cur := &mergeCursor{
			_idx:    i,
			_reader: rr,
			_row:    -1,
		}
		ok, err := cur.advance()
		if err != nil {
			_ = ms.Close()
			return nil, err
		}
		if ok {
			ms._queue.Push(cur)
		}
		ms._sources++
	}
	if local != nil && local.Count() > 0 {
		local.Sort()
		ms._queue.Push(&mergeCursor{
			_idx:   len(readers),
			_local: local,
		})
		ms._sources++
	}
	return ms, nil
}

func (ms *MergeSorter) compareCursor(a, b *mergeCursor) int {
	lc, lrow := a.head()
	rc, rrow := b.head()
	ret := ms._layout.compareRows(lc, lrow, rc, rrow)
	if ret != 0 {
		return ret
	}
	return a._idx - b._idx
}

// NumSources is the number of merged inputs.
func (ms *MergeSorter) NumSources() int {
	return ms._sources
}

// Scan appends up to the free capacity of output.
func (ms *MergeSorter) Scan(output *chunk.Chunk) error {
	for output.Card() < output.Cap() && !ms._queue.Empty() {
		cur := ms._queue.Pop()
		src, row := cur.head()
		output.AppendRow(src, row)
		ok, err := cur.advance()
		if err != nil {
			return err
		}
		if ok {
			ms._queue.Push(cur)
		}
	}
	return nil
}

func (ms *MergeSorter) ReadStats() (uint64, time.Duration) {
	bytes := uint64(0)
	dur := time.Duration(0)
	for _, rr := range ms._readers {
		bytes += rr.ReadBytes()
		dur += rr.ReadTime()
	}
	return bytes, dur
}

func (ms *MergeSorter) Close() error {
	err := spill.CloseReaders(ms._readers)
	for !ms._queue.Empty() {
		ms._queue.Pop()
	}
	ms._readers = nil
	return err
}
