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

package spill

import (
	"fmt"
	"time"
)

// Stats accumulates the spill activity of one operator.
type Stats struct {
	SpilledRuns  uint64
	SpilledFiles uint64
	SpilledRows  uint64
	//bytes on disk
	SpilledBytes uint64
	//serialized bytes before compression
	SpilledInputBytes uint64
	SpillWriteTime    time.Duration
	SpillSortTime     time.Duration
	SpillReadBytes    uint64
	SpillReadTime     time.Duration
}

func (stats *Stats) Add(o Stats) {
	stats.SpilledRuns += o.SpilledRuns
	stats.SpilledFiles += o.SpilledFiles
	stats.SpilledRows += o.SpilledRows
	stats.SpilledBytes += o.SpilledBytes
	stats.SpilledInputBytes += o.SpilledInputBytes
	stats.SpillWriteTime += o.SpillWriteTime
	stats.SpillSortTime += o.SpillSortTime
	stats.SpillReadBytes += o.SpillReadBytes
	stats.SpillReadTime += o.SpillReadTime
}

func (stats *Stats) Empty() bool {
	return stats.SpilledRuns == 0 && stats.SpilledRows == 0 && stats.SpilledBytes == 0
}

func (stats Stats) String() string {
	return fmt.Sprintf("runs %d files %d rows %d bytes %d input bytes %d write %v sort %v read bytes %d read %v",
		stats.SpilledRuns,
		stats.SpilledFiles,
		stats.SpilledRows,
		stats.SpilledBytes,
		stats.SpilledInputBytes,
		stats.SpillWriteTime,
		stats.SpillSortTime,
		stats.SpillReadBytes,
		stats.SpillReadTime)
}
