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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/memory"
	"github.com/daviszhen/sortexec/pkg/spill"
	"github.com/daviszhen/sortexec/pkg/util"
)

var (
	ErrConstantSortKey     = errors.New("order by key must not be a constant")
	ErrPoolUsageNotTracked = errors.New("order by requires a memory pool that tracks usage")
)

type OrderByState int

const (
	OBS_ACCEPTING OrderByState = iota
	OBS_FINALIZING
	OBS_PRODUCING
	OBS_FINISHED
	OBS_ABORTED
)

func (s OrderByState) String() string {
	switch s {
	case OBS_ACCEPTING:
		return "accepting"
	case OBS_FINALIZING:
		return "finalizing"
	case OBS_PRODUCING:
		return "producing"
	case OBS_FINISHED:
		return "finished"
	case OBS_ABORTED:
		return "aborted"
	}
	return fmt.Sprintf("invalid %d", int(s))
}

const (
	rejectSpillDisabled   = "spill disabled"
	rejectNonReclaimable  = "non-reclaimable section"
	rejectOutputStarted   = "no more input"
	rejectOperatorAborted = "aborted"
	rejectOperatorFailed  = "failed"
)

// OrderBy sorts all its input. It is a blocking operator: output starts
// after NoMoreInput. Memory can be reclaimed from another goroutine
// until then by spilling the buffered rows.
type OrderBy struct {
	_ctx         *OperatorCtx
	_node        *OrderByNode
	_outputTypes []common.LType
	_keys        []SortKey
	_pool        memory.Pool
	_spillConfig *spill.Config
	_section     NonReclaimableSection
	_buffer      *SortBuffer

	_state atomic.Int32

	//first spill or merge error, guarded by _section.
	//Every later call returns it.
	_err error

	_noMoreInput  atomic.Bool
	_aborted      atomic.Bool
	_failed       atomic.Bool
	_numSpillRuns atomic.Uint32

	_statsMu sync.Mutex
	_stats   OperatorStats
}

var _ Operator = (*OrderBy)(nil)
var _ memory.Reclaimer = (*OrderBy)(nil)

func NewOrderBy(ctx *OperatorCtx, node *OrderByNode) (*OrderBy, error) {
	if len(node.OrderBys) == 0 {
		return nil, errors.Newf("order by %s without keys", node.Id)
	}
	keys := make([]SortKey, 0, len(node.OrderBys))
	for _, by := range node.OrderBys {
		util.Assertf(by.Typ == ET_Orderby && len(by.Children) == 1,
			"invalid order by item %s", by.Typ)
		child := by.Children[0]
		channel, err := exprToChannel(child, node.OutputTypes)
		if err != nil {
			return nil, errors.Wrapf(err, "order by %s", node.Id)
		}
		if channel == ConstantChannel {
			return nil, errors.Wrapf(ErrConstantSortKey, "order by %s key %s",
				node.Id, child.DataTyp)
		}
		keys = append(keys, SortKey{
			Column: channel,
			Flags:  NewCompareFlags(by.orderType(), by.NullsTyp),
		})
	}
	if ctx.Pool == nil || !ctx.Pool.TrackUsage() {
		return nil, ErrPoolUsageNotTracked
	}
	qc := ctx.QueryConfig
	if qc == nil {
		qc = NewQueryConfig(nil)
	}

	op := &OrderBy{
		_ctx:         ctx,
		_node:        node,
		_outputTypes: common.CopyLTypes(node.OutputTypes...),
		_keys:        keys,
		_pool:        ctx.Pool,
		_stats: OperatorStats{
			OperatorType: "OrderBy",
			PlanNodeId:   node.Id,
		},
	}
	if node.CanSpill(qc) {
		var err error
		op._spillConfig, err = qc.MakeSpillConfig(ctx.OperatorId)
		if err != nil {
			return nil, err
		}
	}
	op._buffer = NewSortBuffer(
		op._outputTypes,
		keys,
		op._pool,
		&op._section,
		op._spillConfig,
		qc.OrderBySpillMemoryThreshold(),
		qc.PreferredOutputBatchRows(),
		&op._numSpillRuns,
	)
	util.Debug("order by created",
		zap.String("planNode", node.Id),
		zap.String("keys", op._buffer._layout.String()),
		zap.Bool("canSpill", op._spillConfig != nil))
	return op, nil
}

func (op *OrderBy) Name() string {
	return "OrderBy"
}

func (op *OrderBy) OutputTypes() []common.LType {
	return op._outputTypes
}

func (op *OrderBy) Keys() []SortKey {
	return op._keys
}

func (op *OrderBy) AddInput(input *chunk.Chunk) error {
	op._section.Enter()
	defer op._section.Leave()
	if op.state() == OBS_ABORTED {
		return ErrAborted
	}
	if op._err != nil {
		return op._err
	}
	util.Assertf(op.state() == OBS_ACCEPTING,
		"order by add input in state %s", op.state())
	err := op._buffer.AddInput(input)
	if err != nil {
		return err
	}
	op._statsMu.Lock()
	op._stats.addInput(input)
	op._statsMu.Unlock()
	return nil
}

// NoMoreInput sorts the input. Later calls only report a failure.
func (op *OrderBy) NoMoreInput() error {
	op._section.Enter()
	defer op._section.Leave()
	if op.state() == OBS_ABORTED {
		return ErrAborted
	}
	if op._err != nil {
		return op._err
	}
	if op.state() != OBS_ACCEPTING {
		return nil
	}
	op.setState(OBS_FINALIZING)
	op._noMoreInput.Store(true)
	err := op._buffer.NoMoreInput()
	if err != nil {
		op.fail(err)
		return err
	}
	op.recordSpillStats()
	op.setState(OBS_PRODUCING)
	return nil
}

// recordSpillStats copies the spill stats of the buffer, if it spilled.
func (op *OrderBy) recordSpillStats() {
	stats := op._buffer.SpilledStats()
	if stats == nil {
		return
	}
	op._statsMu.Lock()
	op._stats.SpillStats = *stats
	op._statsMu.Unlock()
}

func (op *OrderBy) GetOutput() (*chunk.Chunk, error) {
	op._section.Enter()
	defer op._section.Leave()
	if op.state() == OBS_ABORTED {
		return nil, ErrAborted
	}
	if op._err != nil {
		return nil, op._err
	}
	if op.state() != OBS_PRODUCING {
		return nil, nil
	}
	output, err := op._buffer.GetOutput()
	if err != nil {
		op.fail(err)
		return nil, err
	}
	if output == nil {
		op.setState(OBS_FINISHED)
		op.recordSpillStats()
		return nil, nil
	}
	op._statsMu.Lock()
	op._stats.addOutput(output)
	op._statsMu.Unlock()
	return output, nil
}

// fail keeps err as the result of every later call. The caller holds
// the section.
func (op *OrderBy) fail(err error) {
	if op._err != nil {
		return
	}
	op._err = err
	op._failed.Store(true)
	util.Error("order by failed",
		zap.String("planNode", op._node.Id),
		zap.String("state", op.state().String()),
		zap.Error(err))
}

func (op *OrderBy) NeedsInput() bool {
	return op.state() == OBS_ACCEPTING
}

func (op *OrderBy) IsFinished() bool {
	return op.state() == OBS_FINISHED
}

func (op *OrderBy) State() OrderByState {
	return op.state()
}

func (op *OrderBy) state() OrderByState {
	return OrderByState(op._state.Load())
}

func (op *OrderBy) setState(s OrderByState) {
	op._state.Store(int32(s))
}

func (op *OrderBy) Pool() memory.Pool {
	return op._pool
}

func (op *OrderBy) CanReclaim() bool {
	return op._spillConfig != nil
}

func (op *OrderBy) SpillMemoryThreshold() int64 {
	return op._buffer.SpillMemoryThreshold()
}

func (op *OrderBy) ReclaimableBytes() (uint64, bool) {
	if !op.CanReclaim() || op._noMoreInput.Load() || op._aborted.Load() || op._failed.Load() {
		return 0, false
	}
	usage := op._pool.CurrentBytes()
	return uint64(usage), usage > 0
}

// EstimateSize is the memory AddInput will account for input.
func (op *OrderBy) EstimateSize(input *chunk.Chunk) int64 {
	return op._buffer._local.EstimateSize(input)
}

func (op *OrderBy) NumSpillRuns() uint32 {
	return op._numSpillRuns.Load()
}

// Reclaim spills the buffered rows. It never waits: when the driving
// goroutine is inside the operator, or output has started, the request
// is rejected and counted in stats.
func (op *OrderBy) Reclaim(targetBytes uint64, stats *memory.ReclaimStats) error {
	if !op.CanReclaim() {
		op.rejectReclaim(rejectSpillDisabled, stats)
		return nil
	}
	if !op._section.TryEnter() {
		op.rejectReclaim(rejectNonReclaimable, stats)
		return nil
	}
	defer op._section.LeaveTry()
	if op._aborted.Load() || op.state() == OBS_ABORTED {
		op.rejectReclaim(rejectOperatorAborted, stats)
		return nil
	}
	if op._err != nil {
		op.rejectReclaim(rejectOperatorFailed, stats)
		return nil
	}
	if op.state() != OBS_ACCEPTING {
		op.rejectReclaim(rejectOutputStarted, stats)
		return nil
	}

	start := time.Now()
	before := op._pool.ReservedBytes()
	err := op._buffer.Spill(0, targetBytes)
	if err != nil {
		if errors.Is(err, ErrSpillAborted) {
			op.rejectReclaim(rejectOperatorAborted, stats)
			return nil
		}
		op.fail(err)
		return err
	}
	op._pool.Release()
	freed := uint64(0)
	if after := op._pool.ReservedBytes(); before > after {
		freed = uint64(before - after)
	}

	op._statsMu.Lock()
	op._stats.Reclaim.NumReclaims++
	op._stats.Reclaim.ReclaimedBytes += freed
	op._stats.Reclaim.ReclaimExecTime += time.Since(start)
	if spilled := op._buffer.SpilledStats(); spilled != nil {
		op._stats.SpillStats = *spilled
	}
	op._statsMu.Unlock()
	return nil
}

func (op *OrderBy) rejectReclaim(reason string, stats *memory.ReclaimStats) {
	if stats != nil {
		stats.NumNonReclaimableAttempts++
	}
	op._statsMu.Lock()
	op._stats.Reclaim.NumNonReclaimableAttempts++
	op._stats.LastRejectReason = reason
	op._statsMu.Unlock()
	recordReclaimRejected(reason)
	util.Warn("order by reclaim rejected",
		zap.String("reason", reason),
		zap.String("planNode", op._node.Id),
		zap.Int64("owner", op._section.Owner()),
		zap.String("pool", op._pool.Name()),
		zap.String("usage", util.SuccinctBytes(op._pool.CurrentBytes())),
		zap.String("reservation", util.SuccinctBytes(op._pool.ReservedBytes())))
}

// Abort releases every resource. It may be called from any goroutine
// and in any state. An in-flight spill stops at its next batch.
func (op *OrderBy) Abort() {
	if op._aborted.Swap(true) {
		return
	}
	op._buffer.MarkAborted()
	op._section.Enter()
	defer op._section.Leave()
	op.setState(OBS_ABORTED)
	if err := op._buffer.Close(); err != nil {
		util.Warn("order by abort cleanup failed",
			zap.String("planNode", op._node.Id),
			zap.Error(err))
	}
	op._pool.Release()
}

// Close releases every resource. Closing before all output is out ends
// the operator like Abort does.
func (op *OrderBy) Close() error {
	op._section.Enter()
	defer op._section.Leave()
	if op.state() == OBS_ABORTED {
		return nil
	}
	if op.state() != OBS_FINISHED {
		op._aborted.Store(true)
		op._buffer.MarkAborted()
		op.setState(OBS_ABORTED)
	}
	op.recordPeak()
	err := op._buffer.Close()
	op._pool.Release()
	return err
}

func (op *OrderBy) recordPeak() {
	type peaker interface {
		PeakBytes() int64
	}
	if p, ok := op._pool.(peaker); ok {
		op._statsMu.Lock()
		op._stats.PeakMemory = p.PeakBytes()
		op._statsMu.Unlock()
	}
}

func (op *OrderBy) Stats() OperatorStats {
	op._statsMu.Lock()
	defer op._statsMu.Unlock()
	return op._stats
}
