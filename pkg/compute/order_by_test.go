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
	"math/rand"
	"runtime"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/memory"
	"github.com/daviszhen/sortexec/pkg/spill"
	"github.com/daviszhen/sortexec/pkg/util"
)

func testConfig(t *testing.T) *util.Config {
	cfg := util.DefaultConfig()
	cfg.Spill.Dir = t.TempDir()
	cfg.Spill.WriteBatchRows = 16
	cfg.Query.PreferredOutputBatchRows = 10
	return cfg
}

func newTestOrderBy(
	t *testing.T,
	cfg *util.Config,
	pool *memory.TrackedPool,
	types []common.LType,
	orderBys ...*Expr) *OrderBy {
	node := &OrderByNode{
		Id:          "orderby1",
		OutputTypes: types,
		OrderBys:    orderBys,
	}
	op, err := NewOrderBy(&OperatorCtx{
		OperatorId:  1,
		PlanNodeId:  node.Id,
		Pool:        pool,
		QueryConfig: NewQueryConfig(cfg),
	}, node)
	require.NoError(t, err)
	return op
}

func testPools() (*memory.TrackedPool, *memory.TrackedPool) {
	root := memory.NewRootPool("query", 0, 1)
	return root, root.AddChild("orderby1", true)
}

func drainOrderBy(t *testing.T, op *OrderBy) [][]string {
	batches := make([]*chunk.Chunk, 0)
	for !op.IsFinished() {
		output, err := op.GetOutput()
		require.NoError(t, err)
		if output != nil {
			batches = append(batches, output)
		}
	}
	return rowsOf(batches...)
}

func col(name string, typ common.LType, pos int) *Expr {
	return ColumnExpr(name, typ, pos)
}

func Test_orderByScenarioA(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	assert.True(t, op.NeedsInput())
	require.NoError(t, op.AddInput(makeChunk(intVarchar,
		[]any{int64(3), "c"},
		[]any{int64(1), "a"},
		[]any{int64(2), "b"},
	)))
	require.NoError(t, op.NoMoreInput())
	assert.False(t, op.NeedsInput())
	assert.Equal(t, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}}, drainOrderBy(t, op))
	require.NoError(t, op.Close())

	stats := op.Stats()
	assert.Equal(t, uint64(3), stats.InputRows)
	assert.Equal(t, uint64(3), stats.OutputRows)
	assert.True(t, stats.SpillStats.Empty())
	assert.Greater(t, stats.PeakMemory, int64(0))
	assert.Contains(t, stats.String(), "OrderBy")
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_orderByScenarioB(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	types := []common.LType{common.BigintType(), common.BigintType()}
	op := newTestOrderBy(t, cfg, pool, types,
		OrderByExpr(col("a", common.BigintType(), 0), true, OBNT_NULLS_LAST),
		OrderByExpr(col("b", common.BigintType(), 1), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(types,
		[]any{int64(1), nil},
		[]any{int64(1), int64(5)},
		[]any{nil, int64(2)},
	)))
	require.NoError(t, op.NoMoreInput())
	assert.Equal(t, [][]string{{"1", "5"}, {"1", "NULL"}, {"NULL", "2"}}, drainOrderBy(t, op))
	require.NoError(t, op.Close())
}

func Test_orderByScenarioC(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar,
		[]any{int64(4), "d"},
		[]any{int64(2), "b"},
	)))
	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(1, &stats))
	assert.Equal(t, int64(0), pool.CurrentBytes())
	assert.Equal(t, int64(0), pool.ReservedBytes())
	require.NoError(t, op.AddInput(makeChunk(intVarchar,
		[]any{int64(3), "c"},
		[]any{int64(1), "a"},
	)))
	require.NoError(t, op.Reclaim(1, &stats))
	assert.Equal(t, uint64(0), stats.NumNonReclaimableAttempts)
	assert.Equal(t, uint32(2), op.NumSpillRuns())
	assert.Len(t, spillFilesIn(t, cfg.Spill.Dir), 2)

	require.NoError(t, op.NoMoreInput())
	//only the two runs, nothing left in memory
	assert.Equal(t, 2, op._buffer.NumMergeSources())
	assert.Equal(t, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"4", "d"}}, drainOrderBy(t, op))
	require.NoError(t, op.Close())

	opStats := op.Stats()
	assert.Equal(t, uint64(2), opStats.Reclaim.NumReclaims)
	assert.Equal(t, uint64(2), opStats.SpillStats.SpilledRuns)
	assert.Equal(t, uint64(4), opStats.SpillStats.SpilledRows)
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_orderByScenarioD(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	node := &OrderByNode{
		Id:          "orderby1",
		OutputTypes: intVarchar,
		OrderBys: []*Expr{
			OrderByExpr(ConstExpr(chunk.BigintValue(1)), false, OBNT_DEFAULT),
		},
	}
	_, err := NewOrderBy(&OperatorCtx{Pool: pool, QueryConfig: NewQueryConfig(cfg)}, node)
	assert.ErrorIs(t, err, ErrConstantSortKey)

	node.OrderBys = nil
	_, err = NewOrderBy(&OperatorCtx{Pool: pool, QueryConfig: NewQueryConfig(cfg)}, node)
	assert.Error(t, err)

	node.OrderBys = []*Expr{
		OrderByExpr(col("a", common.VarcharType(), 0), false, OBNT_DEFAULT),
	}
	_, err = NewOrderBy(&OperatorCtx{Pool: pool, QueryConfig: NewQueryConfig(cfg)}, node)
	assert.Error(t, err)
}

func Test_orderByPoolNotTracked(t *testing.T) {
	root := memory.NewRootPool("query", 0, 1)
	node := &OrderByNode{
		Id:          "orderby1",
		OutputTypes: intVarchar,
		OrderBys: []*Expr{
			OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT),
		},
	}
	_, err := NewOrderBy(&OperatorCtx{Pool: root.AddChild("orderby1", false)}, node)
	assert.ErrorIs(t, err, ErrPoolUsageNotTracked)
	_, err = NewOrderBy(&OperatorCtx{}, node)
	assert.ErrorIs(t, err, ErrPoolUsageNotTracked)
}

type testRow struct {
	key     *int64
	payload string
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func randomBatches(rnd *rand.Rand, count int) ([]*chunk.Chunk, []testRow) {
	batches := make([]*chunk.Chunk, 0, count)
	rows := make([]testRow, 0)
	seq := 0
	for b := 0; b < count; b++ {
		fields := make([][]any, 0)
		n := 1 + rnd.Intn(50)
		for i := 0; i < n; i++ {
			row := testRow{payload: fmt.Sprintf("p%05d", seq)}
			var key any
			if rnd.Intn(10) != 0 {
				k := int64(rnd.Intn(20))
				row.key = &k
				key = k
			}
			fields = append(fields, []any{key, row.payload})
			rows = append(rows, row)
			seq++
		}
		batches = append(batches, makeChunk(intVarchar, fields...))
	}
	return batches, rows
}

// expectDescNullsFirst sorts rows the way "a desc" does.
func expectDescNullsFirst(rows []testRow) [][]string {
	sorted := append([]testRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].key, sorted[j].key
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return *a > *b
	})
	ret := make([][]string, 0, len(sorted))
	for _, row := range sorted {
		key := "NULL"
		if row.key != nil {
			key = fmt.Sprint(*row.key)
		}
		ret = append(ret, []string{key, row.payload})
	}
	return ret
}

func Test_orderBySpillEquality(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	batches, rows := randomBatches(rnd, 12)
	expect := expectDescNullsFirst(rows)

	run := func(spillAt map[int]bool) ([][]string, *OrderBy) {
		cfg := testConfig(t)
		root, pool := testPools()
		op := newTestOrderBy(t, cfg, pool, intVarchar,
			OrderByExpr(col("a", common.BigintType(), 0), true, OBNT_DEFAULT))
		for i, b := range batches {
			require.NoError(t, op.AddInput(b))
			if spillAt[i] {
				require.NoError(t, op.Reclaim(0, nil))
			}
		}
		require.NoError(t, op.NoMoreInput())
		ret := drainOrderBy(t, op)
		require.NoError(t, op.Close())
		assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
		assert.Equal(t, int64(0), root.ReservedBytes())
		return ret, op
	}

	inMemory, op := run(nil)
	assert.Equal(t, expect, inMemory)
	assert.Equal(t, uint32(0), op.NumSpillRuns())

	spilled, op := run(map[int]bool{2: true, 5: true, 8: true})
	assert.Equal(t, expect, spilled)
	assert.Equal(t, uint32(3), op.NumSpillRuns())
	stats := op.Stats()
	assert.Equal(t, uint64(3), stats.SpillStats.SpilledRuns)
	assert.Equal(t, uint64(3), stats.Reclaim.NumReclaims)
	assert.Equal(t, uint64(len(rows)), stats.OutputRows)

	allSpilled, _ := run(map[int]bool{len(batches) - 1: true})
	assert.Equal(t, expect, allSpilled)
}

func Test_orderByExhausted(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	//no output before input is done
	output, err := op.GetOutput()
	require.NoError(t, err)
	assert.Nil(t, output)

	require.NoError(t, op.AddInput(makeChunk(intVarchar, []any{int64(1), "a"})))
	require.NoError(t, op.NoMoreInput())
	require.NoError(t, op.NoMoreInput())
	assert.Len(t, drainOrderBy(t, op), 1)
	for i := 0; i < 3; i++ {
		output, err = op.GetOutput()
		require.NoError(t, err)
		assert.Nil(t, output)
	}
	assert.True(t, op.IsFinished())
	assert.Panics(t, func() {
		_ = op.AddInput(makeChunk(intVarchar, []any{int64(2), "b"}))
	})
}

func Test_orderByEmptyInput(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar)))
	require.NoError(t, op.NoMoreInput())
	assert.Empty(t, drainOrderBy(t, op))
	require.NoError(t, op.Close())
}

func Test_orderByReclaimUnderSection(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar, []any{int64(1), "a"})))
	usage := pool.CurrentBytes()
	bytes, ok := op.ReclaimableBytes()
	assert.True(t, ok)
	assert.Equal(t, uint64(usage), bytes)

	op._section.Enter()
	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(1, &stats))
	op._section.Leave()

	assert.Equal(t, uint64(1), stats.NumNonReclaimableAttempts)
	assert.Equal(t, uint32(0), op.NumSpillRuns())
	assert.Equal(t, OBS_ACCEPTING, op.State())
	assert.Equal(t, usage, pool.CurrentBytes())
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	opStats := op.Stats()
	assert.Equal(t, uint64(1), opStats.Reclaim.NumNonReclaimableAttempts)
	assert.Equal(t, rejectNonReclaimable, opStats.LastRejectReason)

	//the operator keeps working
	require.NoError(t, op.NoMoreInput())
	assert.Len(t, drainOrderBy(t, op), 1)
	require.NoError(t, op.Close())
}

func Test_orderByReclaimAfterNoMoreInput(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar,
		[]any{int64(2), "b"},
		[]any{int64(1), "a"},
	)))
	require.NoError(t, op.NoMoreInput())
	_, ok := op.ReclaimableBytes()
	assert.False(t, ok)

	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(1, &stats))
	assert.Equal(t, uint64(1), stats.NumNonReclaimableAttempts)
	assert.Equal(t, uint32(0), op.NumSpillRuns())
	assert.Equal(t, rejectOutputStarted, op.Stats().LastRejectReason)
	assert.Equal(t, [][]string{{"1", "a"}, {"2", "b"}}, drainOrderBy(t, op))
	require.NoError(t, op.Close())
}

func Test_orderByReclaimSpillDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Spill.OrderByEnabled = false
	_, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	assert.False(t, op.CanReclaim())
	require.NoError(t, op.AddInput(makeChunk(intVarchar, []any{int64(1), "a"})))
	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(1, &stats))
	assert.Equal(t, uint64(1), stats.NumNonReclaimableAttempts)
	assert.Equal(t, rejectSpillDisabled, op.Stats().LastRejectReason)
	require.NoError(t, op.Close())
}

func Test_orderByCapacityExceeded(t *testing.T) {
	cfg := testConfig(t)
	root := memory.NewRootPool("query", 16, 1)
	op := newTestOrderBy(t, cfg, root.AddChild("orderby1", true), intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	err := op.AddInput(makeChunk(intVarchar,
		[]any{int64(1), "a"},
		[]any{int64(2), "b"},
	))
	assert.ErrorIs(t, err, memory.ErrCapacityExceeded)
	op.Abort()
}

func Test_orderByAbort(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar, []any{int64(1), "a"})))
	require.NoError(t, op.Reclaim(1, nil))
	require.NoError(t, op.AddInput(makeChunk(intVarchar, []any{int64(2), "b"})))
	assert.Len(t, spillFilesIn(t, cfg.Spill.Dir), 1)
	assert.Greater(t, pool.CurrentBytes(), int64(0))

	op.Abort()
	assert.Equal(t, OBS_ABORTED, op.State())
	assert.Equal(t, int64(0), pool.CurrentBytes())
	assert.Equal(t, int64(0), pool.ReservedBytes())
	assert.Equal(t, int64(0), root.ReservedBytes())
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))

	assert.ErrorIs(t, op.AddInput(makeChunk(intVarchar, []any{int64(3), "c"})), ErrAborted)
	assert.ErrorIs(t, op.NoMoreInput(), ErrAborted)
	_, err := op.GetOutput()
	assert.ErrorIs(t, err, ErrAborted)
	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(1, &stats))
	assert.Equal(t, uint64(1), stats.NumNonReclaimableAttempts)

	op.Abort()
	require.NoError(t, op.Close())
}

func Test_orderByAbortWhileProducing(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	for i := 0; i < 3; i++ {
		require.NoError(t, op.AddInput(makeChunk(intVarchar,
			[]any{int64(i), "x"},
			[]any{int64(10 - i), "y"},
		)))
		require.NoError(t, op.Reclaim(0, nil))
	}
	require.NoError(t, op.NoMoreInput())
	output, err := op.GetOutput()
	require.NoError(t, err)
	require.NotNil(t, output)
	op.Abort()
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_orderByConcurrentReclaim(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	batches, rows := randomBatches(rnd, 40)
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), true, OBNT_DEFAULT))

	var inputDone atomic.Bool
	g := errgroup.Group{}
	g.Go(func() error {
		defer inputDone.Store(true)
		for _, b := range batches {
			if err := op.AddInput(b); err != nil {
				return err
			}
			runtime.Gosched()
		}
		return nil
	})
	g.Go(func() error {
		for !inputDone.Load() {
			if err := op.Reclaim(0, nil); err != nil {
				return err
			}
			runtime.Gosched()
		}
		return nil
	})
	require.NoError(t, g.Wait())

	require.NoError(t, op.NoMoreInput())
	assert.Equal(t, expectDescNullsFirst(rows), drainOrderBy(t, op))
	require.NoError(t, op.Close())
	stats := op.Stats()
	assert.Equal(t, uint64(stats.SpillStats.SpilledRuns), uint64(op.NumSpillRuns()))
	//a reclaim between two inputs may find nothing to spill
	assert.GreaterOrEqual(t, stats.Reclaim.NumReclaims, uint64(op.NumSpillRuns()))
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_orderByConcurrentAbort(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	batches, _ := randomBatches(rnd, 20)
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	for _, b := range batches[:10] {
		require.NoError(t, op.AddInput(b))
	}
	require.NoError(t, op.Reclaim(0, nil))
	for _, b := range batches[10:] {
		require.NoError(t, op.AddInput(b))
	}

	g := errgroup.Group{}
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 20; j++ {
				if err := op.Reclaim(0, nil); err != nil {
					return err
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		op.Abort()
		return nil
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, OBS_ABORTED, op.State())
	assert.Equal(t, int64(0), pool.CurrentBytes())
	assert.Equal(t, int64(0), root.ReservedBytes())
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
}

func Test_orderByNodeString(t *testing.T) {
	node := &OrderByNode{
		Id:          "orderby1",
		OutputTypes: intVarchar,
		OutputNames: []string{"a", "b"},
		OrderBys: []*Expr{
			OrderByExpr(col("a", common.BigintType(), 0), true, OBNT_NULLS_LAST),
		},
	}
	cp := node.Copy()
	cp.OrderBys[0].Desc = false
	assert.True(t, node.OrderBys[0].Desc)
	s := node.String()
	assert.Contains(t, s, "OrderBy[orderby1]")
	assert.Contains(t, s, "a")
}

// injectSpillFault makes the named spill fault return err while the
// test runs. fire decides which calls fail, nil means all of them.
func injectSpillFault(t *testing.T, name string, err error, fire func() bool) {
	util.Open(util.FAULTS_SCOPE_SPILL)
	t.Cleanup(func() {
		util.Close(util.FAULTS_SCOPE_SPILL)
	})
	util.Register(util.FAULTS_SCOPE_SPILL, name, nil, func([]string) error {
		if fire == nil || fire() {
			return err
		}
		return nil
	})
}

// spilledOrderBy returns an order by holding two spilled runs of 20
// rows each. The keys of the runs interleave.
func spilledOrderBy(t *testing.T, cfg *util.Config, pool *memory.TrackedPool) *OrderBy {
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	for r := 0; r < 2; r++ {
		rows := make([][]any, 0, 20)
		for i := 0; i < 20; i++ {
			rows = append(rows, []any{int64(i*2 + r), fmt.Sprintf("r%d", r)})
		}
		require.NoError(t, op.AddInput(makeChunk(intVarchar, rows...)))
		require.NoError(t, op.Reclaim(0, nil))
	}
	require.Equal(t, uint32(2), op.NumSpillRuns())
	return op
}

func Test_orderBySpillWriteFault(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar,
		[]any{int64(2), "b"},
		[]any{int64(1), "a"},
	)))
	errDisk := errors.New("disk full")
	injectSpillFault(t, spill.FaultSpillWrite, errDisk, nil)

	assert.ErrorIs(t, op.Reclaim(0, nil), errDisk)
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, uint32(0), op.NumSpillRuns())
	_, ok := op.ReclaimableBytes()
	assert.False(t, ok)

	assert.ErrorIs(t, op.AddInput(makeChunk(intVarchar, []any{int64(3), "c"})), errDisk)
	assert.ErrorIs(t, op.NoMoreInput(), errDisk)
	_, err := op.GetOutput()
	assert.ErrorIs(t, err, errDisk)
	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(0, &stats))
	assert.Equal(t, uint64(1), stats.NumNonReclaimableAttempts)
	assert.Equal(t, rejectOperatorFailed, op.Stats().LastRejectReason)

	op.Abort()
	assert.Equal(t, int64(0), pool.CurrentBytes())
	assert.Equal(t, int64(0), root.ReservedBytes())
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
}

func Test_orderBySpillReadFaultOnFinish(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := spilledOrderBy(t, cfg, pool)
	errDisk := errors.New("disk gone")
	injectSpillFault(t, spill.FaultSpillRead, errDisk, nil)

	assert.ErrorIs(t, op.NoMoreInput(), errDisk)
	assert.ErrorIs(t, op.NoMoreInput(), errDisk)
	for i := 0; i < 3; i++ {
		output, err := op.GetOutput()
		assert.Nil(t, output)
		assert.ErrorIs(t, err, errDisk)
	}
	assert.False(t, op.IsFinished())
	stats := memory.ReclaimStats{}
	require.NoError(t, op.Reclaim(0, &stats))
	assert.Equal(t, uint64(1), stats.NumNonReclaimableAttempts)

	require.NoError(t, op.Close())
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_orderBySpillReadFaultWhileMerging(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := spilledOrderBy(t, cfg, pool)
	errDisk := errors.New("disk gone")
	//the first two reads open the runs, the third one fails once
	var reads atomic.Int32
	injectSpillFault(t, spill.FaultSpillRead, errDisk, func() bool {
		return reads.Add(1) == 3
	})
	require.NoError(t, op.NoMoreInput())

	got := 0
	var err error
	for i := 0; i < 10; i++ {
		var output *chunk.Chunk
		output, err = op.GetOutput()
		if err != nil {
			break
		}
		require.NotNil(t, output)
		got += output.Card()
	}
	require.ErrorIs(t, err, errDisk)
	assert.Less(t, got, 40)

	//no partial result after the failed read
	for i := 0; i < 3; i++ {
		output, err := op.GetOutput()
		assert.Nil(t, output)
		assert.ErrorIs(t, err, errDisk)
	}
	assert.False(t, op.IsFinished())
	assert.Equal(t, OBS_PRODUCING, op.State())

	require.NoError(t, op.Close())
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_orderByCloseBeforeFinished(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := spilledOrderBy(t, cfg, pool)
	require.NoError(t, op.NoMoreInput())
	output, err := op.GetOutput()
	require.NoError(t, err)
	require.NotNil(t, output)

	require.NoError(t, op.Close())
	assert.Equal(t, OBS_ABORTED, op.State())
	assert.False(t, op.IsFinished())
	for i := 0; i < 2; i++ {
		output, err = op.GetOutput()
		assert.Nil(t, output)
		assert.ErrorIs(t, err, ErrAborted)
	}
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
	require.NoError(t, op.Close())
}

func Test_orderByCloseAfterFinished(t *testing.T) {
	cfg := testConfig(t)
	_, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	require.NoError(t, op.AddInput(makeChunk(intVarchar, []any{int64(1), "a"})))
	require.NoError(t, op.NoMoreInput())
	assert.Len(t, drainOrderBy(t, op), 1)
	require.NoError(t, op.Close())
	assert.True(t, op.IsFinished())
	output, err := op.GetOutput()
	require.NoError(t, err)
	assert.Nil(t, output)
}
