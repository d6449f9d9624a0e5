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
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/memory"
	"github.com/daviszhen/sortexec/pkg/spill"
	"github.com/daviszhen/sortexec/pkg/util"
)

var ErrSpillAborted = errors.New("spill aborted")

// SortBuffer collects rows, spills sorted runs on request and returns
// all rows in order once input is done.
type SortBuffer struct {
	_layout               *SortLayout
	_inputTypes           []common.LType
	_pool                 memory.Pool
	_section              *NonReclaimableSection
	_spillConfig          *spill.Config
	_spillMemoryThreshold int64
	_outputBatchRows      int
	_numSpillRuns         *atomic.Uint32

	_state      SortState
	_local      *LocalSort
	_runs       spill.RunSet
	_spillStats spill.Stats
	_scanner    *PayloadScanner
	_merger     *MergeSorter
	_aborted    atomic.Bool
	//first read error, the buffer stays failed
	_err error

	_numInputRows  uint64
	_numOutputRows uint64
}

func NewSortBuffer(
	inputTypes []common.LType,
	keys []SortKey,
	pool memory.Pool,
	section *NonReclaimableSection,
	spillConfig *spill.Config,
	spillMemoryThreshold int64,
	outputBatchRows int,
	numSpillRuns *atomic.Uint32,
) *SortBuffer {
	util.Assertf(len(keys) > 0, "sort buffer without keys")
	util.Assertf(pool != nil, "sort buffer without memory pool")
	if outputBatchRows <= 0 {
		outputBatchRows = util.DefaultVectorSize
	}
	if numSpillRuns == nil {
		numSpillRuns = &atomic.Uint32{}
	}
	layout := NewSortLayout(keys, inputTypes)
	return &SortBuffer{
		_layout:               layout,
		_inputTypes:           common.CopyLTypes(inputTypes...),
		_pool:                 pool,
		_section:              section,
		_spillConfig:          spillConfig,
		_spillMemoryThreshold: spillMemoryThreshold,
		_outputBatchRows:      outputBatchRows,
		_numSpillRuns:         numSpillRuns,
		_local:                NewLocalSort(layout),
	}
}

func (sb *SortBuffer) checkInput(input *chunk.Chunk) {
	util.Assertf(input.ColumnCount() == len(sb._inputTypes),
		"input has %d columns, expect %d", input.ColumnCount(), len(sb._inputTypes))
	for i, vec := range input.Data {
		util.Assertf(vec.Typ().Equal(sb._inputTypes[i]),
			"input column %d has type %s, expect %s", i, vec.Typ(), sb._inputTypes[i])
	}
}

// checkSection asserts the caller is inside the non-reclaimable
// section, if the buffer has one.
func (sb *SortBuffer) checkSection() {
	if sb._section != nil {
		util.Assertf(sb._section.IsSet(), "sort buffer used outside the non-reclaimable section")
	}
}

// AddInput keeps a reference to input and accounts its memory. No
// sorting happens here.
func (sb *SortBuffer) AddInput(input *chunk.Chunk) error {
	sb.checkSection()
	util.Assertf(sb._state == SS_INIT, "add input in state %s", sb._state)
	sb.checkInput(input)
	if input.Card() == 0 {
		return nil
	}
	err := sb._pool.Grow(sb._local.EstimateSize(input))
	if err != nil {
		return err
	}
	sb._local.SinkChunk(input)
	sb._numInputRows += uint64(input.Card())
	return nil
}

// Spill writes the buffered rows as one sorted run and frees their
// memory. targetBytes is a hint: all buffered rows are spilled.
func (sb *SortBuffer) Spill(runHint int, targetBytes uint64) error {
	util.Assertf(sb._spillConfig != nil, "spill without spill config")
	util.Assertf(sb._state == SS_INIT, "spill in state %s", sb._state)
	if sb._local.Count() == 0 {
		return nil
	}
	util.Debug("order by spill begin",
		zap.Int("runHint", runHint),
		zap.Int("runIndex", sb._runs.Len()),
		zap.Int("rows", sb._local.Count()),
		zap.String("memory", util.SuccinctBytes(sb._local.MemoryUsage())),
		zap.String("target", util.SuccinctBytes(int64(targetBytes))))

	start := time.Now()
	sb._local.Sort()
	sortTime := time.Since(start)

	writer, err := spill.NewWriter(sb._spillConfig)
	if err != nil {
		return err
	}
	scanner := sb._local.NewScanner()
	output := chunk.NewChunk(sb._inputTypes, sb._spillConfig.WriteBatchRows)
	for scanner.Remaining() > 0 {
		if sb._aborted.Load() {
			_ = writer.Abort()
			return ErrSpillAborted
		}
		output.Reset()
		scanner.Scan(output)
		err = writer.Write(output)
		if err != nil {
			_ = writer.Abort()
			return err
		}
	}
	run, err := writer.Finish()
	if err != nil {
		return err
	}
	sb._runs.Add(run)
	stats := run.Stats()
	stats.SpillSortTime = sortTime
	sb._spillStats.Add(stats)
	sb._numSpillRuns.Add(1)

	freed := sb._local.MemoryUsage()
	sb._local.Reset()
	sb._pool.Shrink(freed)

	recordSpillRun(run.Rows, run.Bytes)
	util.Debug("order by spill end",
		zap.String("file", run.Path),
		zap.Uint64("rows", run.Rows),
		zap.String("bytes", util.SuccinctBytes(int64(run.Bytes))),
		zap.String("freed", util.SuccinctBytes(freed)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// NoMoreInput sorts the buffered rows. With spilled runs, it merges
// them with the rows still in memory.
func (sb *SortBuffer) NoMoreInput() error {
	sb.checkSection()
	util.Assertf(sb._state == SS_INIT, "no more input in state %s", sb._state)
	sb._state = SS_SORT
	start := time.Now()
	sb._local.Sort()
	if sb._runs.Len() == 0 {
		sb._scanner = sb._local.NewScanner()
	} else {
		merger, err := NewMergeSorter(
			context.Background(),
			sb._layout,
			&sb._runs,
			sb._local,
			sb._spillConfig.WriteBufferSize,
		)
		if err != nil {
			sb._err = err
			return err
		}
		sb._merger = merger
	}
	sb._spillStats.SpillSortTime += time.Since(start)
	sb._state = SS_SCAN
	return nil
}

// GetOutput returns the next sorted batch, nil once all rows are out.
func (sb *SortBuffer) GetOutput() (*chunk.Chunk, error) {
	if sb._err != nil {
		return nil, sb._err
	}
	if sb._state == SS_DONE || sb._state == SS_CLOSED {
		return nil, nil
	}
	util.Assertf(sb._state == SS_SCAN, "get output in state %s", sb._state)
	output := chunk.NewChunk(sb._inputTypes, sb._outputBatchRows)
	if sb._merger != nil {
		err := sb._merger.Scan(output)
		if err != nil {
			sb._err = err
			return nil, err
		}
	} else {
		sb._scanner.Scan(output)
	}
	if output.Card() == 0 {
		util.Assertf(sb._numOutputRows == sb._numInputRows,
			"output %d rows, input %d rows", sb._numOutputRows, sb._numInputRows)
		sb._state = SS_DONE
		return nil, sb.releaseResources()
	}
	sb._numOutputRows += uint64(output.Card())
	return output, nil
}

// releaseResources frees memory and spill files. It can be called more
// than once.
func (sb *SortBuffer) releaseResources() error {
	var result *multierror.Error
	if sb._merger != nil {
		readBytes, readTime := sb._merger.ReadStats()
		sb._spillStats.SpillReadBytes += readBytes
		sb._spillStats.SpillReadTime += readTime
		if err := sb._merger.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		sb._merger = nil
	}
	if err := sb._runs.RemoveAll(); err != nil {
		result = multierror.Append(result, err)
	}
	sb._scanner = nil
	if usage := sb._local.MemoryUsage(); usage > 0 {
		sb._local.Reset()
		sb._pool.Shrink(usage)
	}
	sb._pool.Release()
	return result.ErrorOrNil()
}

// MarkAborted makes an in-flight spill stop at the next batch.
func (sb *SortBuffer) MarkAborted() {
	sb._aborted.Store(true)
}

func (sb *SortBuffer) Close() error {
	if sb._state == SS_CLOSED {
		return nil
	}
	sb._state = SS_CLOSED
	return sb.releaseResources()
}

// SpilledStats is nil when nothing was spilled.
func (sb *SortBuffer) SpilledStats() *spill.Stats {
	if sb._spillStats.Empty() {
		return nil
	}
	ret := sb._spillStats
	if sb._merger != nil {
		readBytes, readTime := sb._merger.ReadStats()
		ret.SpillReadBytes += readBytes
		ret.SpillReadTime += readTime
	}
	return &ret
}

func (sb *SortBuffer) CanSpill() bool {
	return sb._spillConfig != nil
}

// NumRows is the number of rows still buffered in memory.
func (sb *SortBuffer) NumRows() int {
	return sb._local.Count()
}

func (sb *SortBuffer) NumInputRows() uint64 {
	return sb._numInputRows
}

func (sb *SortBuffer) MemoryUsage() int64 {
	return sb._local.MemoryUsage()
}

func (sb *SortBuffer) SpillMemoryThreshold() int64 {
	return sb._spillMemoryThreshold
}

func (sb *SortBuffer) NumSpillRuns() int {
	return sb._runs.Len()
}

func (sb *SortBuffer) NumMergeSources() int {
	if sb._merger == nil {
		return 0
	}
	return sb._merger.NumSources()
}

func (sb *SortBuffer) State() SortState {
	return sb._state
}
