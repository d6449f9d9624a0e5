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
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	"github.com/daviszhen/sortexec/pkg/util"
)

// NonReclaimableSection marks the spans where the driving goroutine
// mutates operator state. Reclaim never waits for it: TryEnter fails
// while the section is held by anyone.
type NonReclaimableSection struct {
	_mu    sync.Mutex
	_flag  atomic.Bool
	_owner atomic.Int64
}

// Enter is used by the driving goroutine. It waits for an in-flight
// reclaim to finish. The section is not reentrant.
func (sec *NonReclaimableSection) Enter() {
	id := goid.Get()
	util.Assertf(sec._owner.Load() != id,
		"goroutine %d enters the non-reclaimable section twice", id)
	sec._mu.Lock()
	sec._flag.Store(true)
	sec._owner.Store(id)
}

func (sec *NonReclaimableSection) Leave() {
	sec._owner.Store(0)
	sec._flag.Store(false)
	sec._mu.Unlock()
}

// TryEnter is used by reclaim. The flag is left unset so that IsSet
// keeps meaning the driving goroutine is inside.
func (sec *NonReclaimableSection) TryEnter() bool {
	if sec._flag.Load() {
		return false
	}
	if !sec._mu.TryLock() {
		return false
	}
	sec._owner.Store(goid.Get())
	return true
}

// LeaveTry ends a successful TryEnter.
func (sec *NonReclaimableSection) LeaveTry() {
	sec._owner.Store(0)
	sec._mu.Unlock()
}

func (sec *NonReclaimableSection) IsSet() bool {
	return sec._flag.Load()
}

// Owner is the goroutine id holding the section, 0 if none.
func (sec *NonReclaimableSection) Owner() int64 {
	return sec._owner.Load()
}
