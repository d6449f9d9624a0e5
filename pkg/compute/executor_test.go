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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqWriter "github.com/xitongsys/parquet-go/writer"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/memory"
)

func collectSink(batches *[]*chunk.Chunk) func(*chunk.Chunk) error {
	return func(c *chunk.Chunk) error {
		*batches = append(*batches, c)
		return nil
	}
}

func Test_driverArbiter(t *testing.T) {
	batches, rows := randomBatches(newRand(3), 30)
	cfg := testConfig(t)
	root := memory.NewRootPool("query", 4096, 1)
	pool := root.AddChild("orderby1", true)
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), true, OBNT_DEFAULT))

	arbiter := memory.NewArbiter()
	arbiter.Start()
	defer arbiter.Stop()

	output := make([]*chunk.Chunk, 0)
	driver := NewDriver(NewValuesSource(intVarchar, batches...), op, root, arbiter)
	require.NoError(t, driver.Run(context.Background(), collectSink(&output)))
	assert.Equal(t, expectDescNullsFirst(rows), rowsOf(output...))

	assert.Greater(t, op.NumSpillRuns(), uint32(0))
	stats := arbiter.Stats()
	assert.Greater(t, stats.NumReclaims, uint64(0))
	assert.Greater(t, stats.ReclaimedBytes, uint64(0))
	assert.Empty(t, spillFilesIn(t, cfg.Spill.Dir))
	assert.Equal(t, int64(0), root.ReservedBytes())
	assert.Greater(t, driver.Elapsed(), time.Duration(0))

	opStats := driver.Stats()
	require.Len(t, opStats, 2)
	assert.Equal(t, uint64(len(rows)), opStats[0].OutputRows)
	assert.Equal(t, uint64(len(rows)), opStats[1].InputRows)
	assert.Equal(t, uint64(len(rows)), opStats[1].OutputRows)
}

func Test_driverThreshold(t *testing.T) {
	batches, rows := randomBatches(newRand(5), 20)
	cfg := testConfig(t)
	cfg.Query.OrderBySpillMemoryThreshold = 2048
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), true, OBNT_DEFAULT))
	assert.Equal(t, int64(2048), op.SpillMemoryThreshold())

	output := make([]*chunk.Chunk, 0)
	driver := NewDriver(NewValuesSource(intVarchar, batches...), op, root, memory.NewArbiter())
	require.NoError(t, driver.Run(context.Background(), collectSink(&output)))
	assert.Equal(t, expectDescNullsFirst(rows), rowsOf(output...))
	assert.Greater(t, op.NumSpillRuns(), uint32(0))
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_driverWithoutArbiter(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	src := NewValuesSource(intVarchar,
		makeChunk(intVarchar, []any{int64(3), "c"}, []any{int64(1), "a"}),
		makeChunk(intVarchar, []any{int64(2), "b"}),
	)
	output := make([]*chunk.Chunk, 0)
	require.NoError(t, NewDriver(src, op, root, nil).Run(context.Background(), collectSink(&output)))
	assert.Equal(t, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}}, rowsOf(output...))
}

func Test_driverPanicAborts(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	wrongTypes := []common.LType{common.VarcharType(), common.VarcharType()}
	src := NewValuesSource(wrongTypes,
		makeChunk(intVarchar, []any{int64(1), "a"}),
		makeChunk(wrongTypes, []any{"x", "y"}),
	)
	err := NewDriver(src, op, root, nil).Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input column 0 has type")
	assert.Equal(t, OBS_ABORTED, op.State())
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_driverSinkError(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	src := NewValuesSource(intVarchar, makeChunk(intVarchar, []any{int64(1), "a"}))
	errSink := errors.New("sink failed")
	err := NewDriver(src, op, root, nil).Run(context.Background(), func(*chunk.Chunk) error {
		return errSink
	})
	assert.ErrorIs(t, err, errSink)
	assert.Equal(t, OBS_ABORTED, op.State())
	assert.Equal(t, int64(0), root.ReservedBytes())
}

func Test_driverCancelled(t *testing.T) {
	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	src := NewValuesSource(intVarchar, makeChunk(intVarchar, []any{int64(1), "a"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewDriver(src, op, root, nil).Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OBS_ABORTED, op.State())
}

func Test_fileScanCsv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("a|b|c\n3|c|x\n1|a|y\n|n|z\n2|b|w\n"), 0600))
	scan, err := NewFileScan(&FileScanInfo{
		FilePath:  path,
		Format:    "csv",
		Types:     []common.LType{common.VarcharType(), common.BigintType()},
		ColumnIds: []int{2, 0},
		Delimiter: '|',
		Header:    true,
	}, 3)
	require.NoError(t, err)
	batches := make([]*chunk.Chunk, 0)
	for !scan.IsFinished() {
		output, err := scan.GetOutput()
		require.NoError(t, err)
		if output != nil {
			batches = append(batches, output)
		}
	}
	require.Len(t, batches, 2)
	assert.Equal(t, [][]string{{"x", "3"}, {"y", "1"}, {"z", "NULL"}, {"w", "2"}}, rowsOf(batches...))
	require.NoError(t, scan.Close())
	require.NoError(t, scan.Close())
	assert.Equal(t, uint64(4), scan.Stats().OutputRows)
}

func Test_fileScanErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileScan(&FileScanInfo{
		FilePath: filepath.Join(dir, "missing.csv"),
		Format:   "csv",
		Types:    intVarchar,
	}, 0)
	assert.Error(t, err)

	_, err = NewFileScan(&FileScanInfo{FilePath: "x", Format: "json", Types: intVarchar}, 0)
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,a\nx,b\n"), 0600))
	scan, err := NewFileScan(&FileScanInfo{FilePath: path, Format: "csv", Types: intVarchar}, 0)
	require.NoError(t, err)
	_, err = scan.GetOutput()
	assert.Error(t, err)
	require.NoError(t, scan.Close())
}

func Test_driverCsv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.csv")
	require.NoError(t, os.WriteFile(path, []byte("3,c\n1,a\n,x\n2,b\n"), 0600))
	scan, err := NewFileScan(&FileScanInfo{
		FilePath: path,
		Format:   "csv",
		Types:    intVarchar,
	}, 2)
	require.NoError(t, err)

	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("a", common.BigintType(), 0), false, OBNT_DEFAULT))
	output := make([]*chunk.Chunk, 0)
	require.NoError(t, NewDriver(scan, op, root, memory.NewArbiter()).Run(context.Background(), collectSink(&output)))
	assert.Equal(t, [][]string{{"1", "a"}, {"2", "b"}, {"3", "c"}, {"NULL", "x"}}, rowsOf(output...))
}

type parquetRow struct {
	A int64  `parquet:"name=a, type=INT64"`
	B string `parquet:"name=b, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func writeParquet(t *testing.T, path string, rows []parquetRow) {
	fw, err := pqLocal.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := pqWriter.NewParquetWriter(fw, new(parquetRow), 1)
	require.NoError(t, err)
	for _, row := range rows {
		require.NoError(t, pw.Write(row))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}

func Test_driverParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.parquet")
	writeParquet(t, path, []parquetRow{
		{A: 3, B: "c"},
		{A: 1, B: "a"},
		{A: 2, B: "b"},
	})
	scan, err := NewFileScan(&FileScanInfo{
		FilePath: path,
		Format:   "parquet",
		Types:    intVarchar,
	}, 2)
	require.NoError(t, err)

	cfg := testConfig(t)
	root, pool := testPools()
	op := newTestOrderBy(t, cfg, pool, intVarchar,
		OrderByExpr(col("b", common.VarcharType(), 1), true, OBNT_DEFAULT))
	output := make([]*chunk.Chunk, 0)
	require.NoError(t, NewDriver(scan, op, root, nil).Run(context.Background(), collectSink(&output)))
	assert.Equal(t, [][]string{{"3", "c"}, {"2", "b"}, {"1", "a"}}, rowsOf(output...))
	assert.Equal(t, uint64(3), scan.Stats().OutputRows)
}
