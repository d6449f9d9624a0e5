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
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/sortexec/pkg/util"
)

var ErrCapacityExceeded = errors.New("memory pool capacity exceeded")

// Pool accounts the memory of one query or operator.
type Pool interface {
	Name() string
	// TrackUsage reports whether usage is accounted at all.
	TrackUsage() bool
	CurrentBytes() int64
	ReservedBytes() int64
	Grow(n int64) error
	Shrink(n int64)
	// Release returns the unused reservation to the parent.
	Release()
	// Capacity is the reservation limit. 0 means unlimited.
	Capacity() int64
}

// TrackedPool reserves memory in multiples of a quantum. A child pool
// reserves its reservation from its parent, so the root sees the
// total reservation of the query.
type TrackedPool struct {
	name       string
	parent     *TrackedPool
	trackUsage bool
	quantum    int64
	capacity   int64

	mu       sync.Mutex
	current  int64
	reserved int64
	peak     int64
}

var _ Pool = (*TrackedPool)(nil)

func NewRootPool(name string, capacity int64, quantum int64) *TrackedPool {
	if quantum <= 0 {
		quantum = 1
	}
	return &TrackedPool{
		name:       name,
		trackUsage: true,
		quantum:    quantum,
		capacity:   capacity,
	}
}

// AddChild creates a leaf pool sharing the quantum of pool.
func (pool *TrackedPool) AddChild(name string, trackUsage bool) *TrackedPool {
	return &TrackedPool{
		name:       name,
		parent:     pool,
		trackUsage: trackUsage,
		quantum:    pool.quantum,
	}
}

func (pool *TrackedPool) Name() string {
	return pool.name
}

func (pool *TrackedPool) TrackUsage() bool {
	return pool.trackUsage
}

func (pool *TrackedPool) Capacity() int64 {
	if pool.parent != nil {
		return pool.parent.Capacity()
	}
	return pool.capacity
}

func (pool *TrackedPool) CurrentBytes() int64 {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.current
}

func (pool *TrackedPool) ReservedBytes() int64 {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.reserved
}

func (pool *TrackedPool) PeakBytes() int64 {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return pool.peak
}

func (pool *TrackedPool) roundUp(n int64) int64 {
	return (n + pool.quantum - 1) / pool.quantum * pool.quantum
}

func (pool *TrackedPool) Grow(n int64) error {
	if n <= 0 {
		return nil
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	need := pool.current + n
	if need > pool.reserved {
		newReserved := pool.roundUp(need)
		if err := pool.reserveLocked(newReserved - pool.reserved); err != nil {
			return err
		}
		pool.reserved = newReserved
	}
	pool.current = need
	pool.peak = max(pool.peak, pool.current)
	return nil
}

// reserveLocked takes delta more bytes from the parent chain.
func (pool *TrackedPool) reserveLocked(delta int64) error {
	if pool.parent != nil {
		err := pool.parent.Grow(delta)
		if err != nil {
			return errors.Wrapf(err, "pool %s grow %s", pool.name, util.SuccinctBytes(delta))
		}
		return nil
	}
	if pool.capacity > 0 && pool.reserved+delta > pool.capacity {
		return errors.Wrapf(ErrCapacityExceeded,
			"pool %s reserved %s request %s capacity %s",
			pool.name,
			util.SuccinctBytes(pool.reserved),
			util.SuccinctBytes(delta),
			util.SuccinctBytes(pool.capacity))
	}
	return nil
}

// Shrink lowers the usage. The reservation is kept until Release.
func (pool *TrackedPool) Shrink(n int64) {
	if n <= 0 {
		return
	}
	pool.mu.Lock()
	defer pool.mu.Unlock()
	util.Assertf(n <= pool.current,
		"pool %s shrink %d more than usage %d", pool.name, n, pool.current)
	pool.current -= n
}

// Release drops the reservation to exactly the current usage.
func (pool *TrackedPool) Release() {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	delta := pool.reserved - pool.current
	if delta <= 0 {
		return
	}
	pool.reserved = pool.current
	if pool.parent != nil {
		pool.parent.Shrink(delta)
		pool.parent.Release()
	}
}

func (pool *TrackedPool) String() string {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	return fmt.Sprintf("%s usage %s reserved %s peak %s",
		pool.name,
		util.SuccinctBytes(pool.current),
		util.SuccinctBytes(pool.reserved),
		util.SuccinctBytes(pool.peak))
}
