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

	"github.com/cockroachdb/errors"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/memory"
	"github.com/daviszhen/sortexec/pkg/spill"
	"github.com/daviszhen/sortexec/pkg/util"
)

var ErrAborted = errors.New("operator aborted")

// Operator is one stage of a pipeline. All methods except Abort and,
// where supported, Reclaim are called from the driving goroutine.
type Operator interface {
	Name() string
	OutputTypes() []common.LType
	AddInput(input *chunk.Chunk) error
	NoMoreInput() error
	// GetOutput returns nil when no batch is ready.
	GetOutput() (*chunk.Chunk, error)
	NeedsInput() bool
	IsFinished() bool
	Abort()
	Close() error
	Stats() OperatorStats
}

type OperatorCtx struct {
	OperatorId  int
	PlanNodeId  string
	Pool        memory.Pool
	QueryConfig *QueryConfig
}

type OperatorStats struct {
	OperatorType  string
	PlanNodeId    string
	InputRows     uint64
	InputBatches  uint64
	OutputRows    uint64
	OutputBatches uint64
	SpillStats    spill.Stats
	Reclaim       memory.ReclaimStats
	//reason of the last rejected reclaim
	LastRejectReason string
	PeakMemory       int64
}

func (stats *OperatorStats) addInput(input *chunk.Chunk) {
	stats.InputRows += uint64(input.Card())
	stats.InputBatches++
}

func (stats *OperatorStats) addOutput(output *chunk.Chunk) {
	stats.OutputRows += uint64(output.Card())
	stats.OutputBatches++
}

func (stats OperatorStats) String() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s[%s]", stats.OperatorType, stats.PlanNodeId))
	tree.AddMetaNode("input", fmt.Sprintf("%d rows, %d batches", stats.InputRows, stats.InputBatches))
	tree.AddMetaNode("output", fmt.Sprintf("%d rows, %d batches", stats.OutputRows, stats.OutputBatches))
	if stats.PeakMemory > 0 {
		tree.AddMetaNode("peak memory", util.SuccinctBytes(stats.PeakMemory))
	}
	if !stats.SpillStats.Empty() {
		sp := tree.AddBranch("spill")
		sp.AddMetaNode("runs", stats.SpillStats.SpilledRuns)
		sp.AddMetaNode("rows", stats.SpillStats.SpilledRows)
		sp.AddMetaNode("bytes", util.SuccinctBytes(int64(stats.SpillStats.SpilledBytes)))
		sp.AddMetaNode("input bytes", util.SuccinctBytes(int64(stats.SpillStats.SpilledInputBytes)))
		sp.AddMetaNode("write time", stats.SpillStats.SpillWriteTime)
		sp.AddMetaNode("sort time", stats.SpillStats.SpillSortTime)
		sp.AddMetaNode("read bytes", util.SuccinctBytes(int64(stats.SpillStats.SpillReadBytes)))
		sp.AddMetaNode("read time", stats.SpillStats.SpillReadTime)
	}
	if stats.Reclaim.NumReclaims > 0 || stats.Reclaim.NumNonReclaimableAttempts > 0 {
		rc := tree.AddBranch("reclaim")
		rc.AddMetaNode("reclaims", stats.Reclaim.NumReclaims)
		rc.AddMetaNode("reclaimed", util.SuccinctBytes(int64(stats.Reclaim.ReclaimedBytes)))
		rc.AddMetaNode("rejected", stats.Reclaim.NumNonReclaimableAttempts)
		if stats.LastRejectReason != "" {
			rc.AddMetaNode("last rejection", stats.LastRejectReason)
		}
	}
	return tree.String()
}
