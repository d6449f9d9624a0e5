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

package memory

import (
	"fmt"
	"time"
)

// ReclaimStats counts the outcome of reclaim requests on one
// participant.
type ReclaimStats struct {
	ReclaimedBytes            uint64
	NumReclaims               uint64
	NumNonReclaimableAttempts uint64
	ReclaimExecTime           time.Duration
}

func (stats *ReclaimStats) Add(o ReclaimStats) {
	stats.ReclaimedBytes += o.ReclaimedBytes
	stats.NumReclaims += o.NumReclaims
	stats.NumNonReclaimableAttempts += o.NumNonReclaimableAttempts
	stats.ReclaimExecTime += o.ReclaimExecTime
}

func (stats ReclaimStats) String() string {
	return fmt.Sprintf("reclaimed %d bytes in %d reclaims, %d rejected, %v",
		stats.ReclaimedBytes,
		stats.NumReclaims,
		stats.NumNonReclaimableAttempts,
		stats.ReclaimExecTime)
}

// Reclaimer is an operator that can free memory on request.
// Reclaim may be called from a goroutine other than the one driving
// the operator. It must not block on the driving goroutine; when the
// operator is busy it rejects the request and records the attempt in
// stats.
type Reclaimer interface {
	Pool() Pool
	CanReclaim() bool
	// ReclaimableBytes is an estimate. ok is false when nothing can
	// be reclaimed right now.
	ReclaimableBytes() (bytes uint64, ok bool)
	Reclaim(targetBytes uint64, stats *ReclaimStats) error
}
