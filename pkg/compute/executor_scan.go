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
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/util"
)

type FileScanInfo struct {
	FilePath string
	//csv or parquet
	Format string
	Types  []common.LType
	Names  []string
	//file columns to read. Empty means the first len(Types) columns.
	ColumnIds []int
	Delimiter rune
	//csv only: skip the first line
	Header bool
}

// FileScan reads a csv or parquet file into batches.
type FileScan struct {
	_info      *FileScanInfo
	_batchRows int
	_colIndice []int

	_dataFile *os.File
	_reader   *csv.Reader

	_pqFile     source.ParquetFile
	_pqReader   *pqReader.ParquetReader
	_pqNumRows  int64
	_pqReadRows int64

	_finished bool
	_stats    OperatorStats
}

var _ Operator = (*FileScan)(nil)

func NewFileScan(info *FileScanInfo, batchRows int) (*FileScan, error) {
	if batchRows <= 0 {
		batchRows = util.DefaultVectorSize
	}
	scan := &FileScan{
		_info:      info,
		_batchRows: batchRows,
		_colIndice: info.ColumnIds,
		_stats: OperatorStats{
			OperatorType: "FileScan",
			PlanNodeId:   info.FilePath,
		},
	}
	if len(scan._colIndice) == 0 {
		for i := range info.Types {
			scan._colIndice = append(scan._colIndice, i)
		}
	}
	if len(scan._colIndice) != len(info.Types) {
		return nil, errors.Newf("%d columns with %d types", len(scan._colIndice), len(info.Types))
	}
	var err error
	switch strings.ToLower(info.Format) {
	case "parquet":
		scan._pqFile, err = pqLocal.NewLocalFileReader(info.FilePath)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", info.FilePath)
		}
		scan._pqReader, err = pqReader.NewParquetColumnReader(scan._pqFile, 1)
		if err != nil {
			_ = scan._pqFile.Close()
			return nil, errors.Wrapf(err, "read parquet footer of %s", info.FilePath)
		}
		scan._pqNumRows = scan._pqReader.GetNumRows()
	case "csv":
		scan._dataFile, err = os.OpenFile(info.FilePath, os.O_RDONLY, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s", info.FilePath)
		}
		//init csv reader
		scan._reader = csv.NewReader(scan._dataFile)
		if info.Delimiter != 0 {
			scan._reader.Comma = info.Delimiter
		}
		scan._reader.FieldsPerRecord = -1
		if info.Header {
			if _, err = scan._reader.Read(); err != nil && !errors.Is(err, io.EOF) {
				_ = scan._dataFile.Close()
				return nil, errors.Wrapf(err, "read header of %s", info.FilePath)
			}
		}
	default:
		return nil, errors.Newf("unsupported file format %q", info.Format)
	}
	return scan, nil
}

func (scan *FileScan) Name() string {
	return "FileScan"
}

func (scan *FileScan) OutputTypes() []common.LType {
	return scan._info.Types
}

func (scan *FileScan) AddInput(*chunk.Chunk) error {
	panic("file scan has no input")
}

func (scan *FileScan) NoMoreInput() error {
	return nil
}

func (scan *FileScan) NeedsInput() bool {
	return false
}

func (scan *FileScan) IsFinished() bool {
	return scan._finished
}

func (scan *FileScan) GetOutput() (*chunk.Chunk, error) {
	if scan._finished {
		return nil, nil
	}
	output := chunk.NewChunk(scan._info.Types, scan._batchRows)
	var err error
	if scan._pqReader != nil {
		err = scan.readParquetTable(output, scan._batchRows)
	} else {
		err = scan.readCsvTable(output, scan._batchRows)
	}
	if err != nil {
		return nil, err
	}
	if output.Card() == 0 {
		scan._finished = true
		return nil, nil
	}
	scan._stats.addOutput(output)
	return output, nil
}

func (scan *FileScan) readParquetTable(output *chunk.Chunk, maxCnt int) error {
	maxCnt = int(min(int64(maxCnt), scan._pqNumRows-scan._pqReadRows))
	if maxCnt <= 0 {
		return nil
	}
	rowCont := -1
	//fill field into vector
	for j, idx := range scan._colIndice {
		values, _, _, err := scan._pqReader.ReadColumnByIndex(int64(idx), int64(maxCnt))
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return errors.Wrapf(err, "read column %d of %s", idx, scan._info.FilePath)
		}
		if rowCont < 0 {
			rowCont = len(values)
		} else if len(values) != rowCont {
			return errors.Newf("column %d has different count of values %d with previous columns %d",
				idx, len(values), rowCont)
		}
		vec := output.Data[j]
		for i := 0; i < len(values); i++ {
			//[row i, col j]
			val, err := chunk.FromAny(values[i], vec.Typ())
			if err != nil {
				return errors.Wrapf(err, "row %d column %d", scan._pqReadRows+int64(i), idx)
			}
			vec.SetValue(i, val)
		}
	}
	rowCont = max(rowCont, 0)
	scan._pqReadRows += int64(rowCont)
	output.SetCard(rowCont)
	return nil
}

func (scan *FileScan) readCsvTable(output *chunk.Chunk, maxCnt int) error {
	rowCont := 0
	for i := 0; i < maxCnt; i++ {
		//read line
		line, err := scan._reader.Read()
		if err != nil {
			//EOF
			if errors.Is(err, io.EOF) {
				break
			}
			return errors.Wrapf(err, "read %s", scan._info.FilePath)
		}
		//fill field into vector
		for j, idx := range scan._colIndice {
			if idx >= len(line) {
				lineNo, _ := scan._reader.FieldPos(0)
				return errors.Newf("no enough fields in line %d of %s", lineNo, scan._info.FilePath)
			}
			//[row i, col j] = field
			vec := output.Data[j]
			val, err := chunk.ParseValue(line[idx], vec.Typ())
			if err != nil {
				return err
			}
			vec.SetValue(i, val)
		}
		rowCont++
	}
	output.SetCard(rowCont)
	return nil
}

func (scan *FileScan) Abort() {
	_ = scan.Close()
}

func (scan *FileScan) Close() error {
	scan._finished = true
	if scan._pqReader != nil {
		scan._pqReader.ReadStop()
		scan._pqReader = nil
		return scan._pqFile.Close()
	}
	if scan._dataFile != nil {
		scan._reader = nil
		err := scan._dataFile.Close()
		scan._dataFile = nil
		return err
	}
	return nil
}

func (scan *FileScan) Stats() OperatorStats {
	return scan._stats
}

// ValuesSource returns prepared batches, for tests and small inputs.
type ValuesSource struct {
	_types   []common.LType
	_batches []*chunk.Chunk
	_next    int
	_stats   OperatorStats
}

var _ Operator = (*ValuesSource)(nil)

func NewValuesSource(types []common.LType, batches ...*chunk.Chunk) *ValuesSource {
	return &ValuesSource{
		_types:   types,
		_batches: batches,
		_stats: OperatorStats{
			OperatorType: "Values",
		},
	}
}

func (src *ValuesSource) Name() string {
	return "Values"
}

func (src *ValuesSource) OutputTypes() []common.LType {
	return src._types
}

func (src *ValuesSource) AddInput(*chunk.Chunk) error {
	panic("values source has no input")
}

func (src *ValuesSource) NoMoreInput() error {
	return nil
}

func (src *ValuesSource) NeedsInput() bool {
	return false
}

func (src *ValuesSource) IsFinished() bool {
	return src._next >= len(src._batches)
}

func (src *ValuesSource) GetOutput() (*chunk.Chunk, error) {
	if src.IsFinished() {
		return nil, nil
	}
	ret := src._batches[src._next]
	src._next++
	src._stats.addOutput(ret)
	return ret, nil
}

func (src *ValuesSource) Abort() {
	src._next = len(src._batches)
}

func (src *ValuesSource) Close() error {
	src._batches = nil
	src._next = 0
	return nil
}

func (src *ValuesSource) Stats() OperatorStats {
	return src._stats
}
