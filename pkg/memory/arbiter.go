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
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/daviszhen/sortexec/pkg/util"
)

var ErrArbiterStopped = errors.New("arbiter stopped")

type participant struct {
	id        uint64
	reclaimer Reclaimer
	//0 means no threshold
	threshold int64
	stats     ReclaimStats
}

type candidate struct {
	part  *participant
	bytes uint64
}

// larger reclaimable bytes first
func candidateLess(a, b candidate) bool {
	if a.bytes != b.bytes {
		return a.bytes > b.bytes
	}
	return a.part.id < b.part.id
}

type arbitrateKind int

const (
	arbitrateNeed arbitrateKind = iota
	arbitrateThreshold
)

type arbitrateRequest struct {
	ctx  context.Context
	kind arbitrateKind
	need uint64
	done chan arbitrateResult
}

type arbitrateResult struct {
	freed uint64
	err   error
}

// Arbiter asks participants to give memory back. Requests are served
// on the arbiter goroutine after Start; the caller waits for the
// result, so the participants are paused while they are reclaimed.
type Arbiter struct {
	mu           sync.Mutex
	participants map[uint64]*participant
	nextId       uint64
	stats        ReclaimStats

	reqs    chan *arbitrateRequest
	stopped chan struct{}
	wg      sync.WaitGroup
	running bool
}

func NewArbiter() *Arbiter {
	return &Arbiter{
		participants: make(map[uint64]*participant),
	}
}

// Register adds r. A positive threshold makes ArbitrateThreshold
// reclaim r once its pool usage goes beyond it.
func (arb *Arbiter) Register(r Reclaimer, threshold int64) uint64 {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	arb.nextId++
	arb.participants[arb.nextId] = &participant{
		id:        arb.nextId,
		reclaimer: r,
		threshold: threshold,
	}
	return arb.nextId
}

func (arb *Arbiter) Unregister(id uint64) {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	if part, has := arb.participants[id]; has {
		arb.stats.Add(part.stats)
		delete(arb.participants, id)
	}
}

// Stats sums the reclaim stats of current and past participants.
func (arb *Arbiter) Stats() ReclaimStats {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	ret := arb.stats
	for _, part := range arb.participants {
		ret.Add(part.stats)
	}
	return ret
}

func (arb *Arbiter) ParticipantStats(id uint64) ReclaimStats {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	if part, has := arb.participants[id]; has {
		return part.stats
	}
	return ReclaimStats{}
}

func (arb *Arbiter) Start() {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	if arb.running {
		return
	}
	arb.running = true
	arb.reqs = make(chan *arbitrateRequest)
	arb.stopped = make(chan struct{})
	arb.wg.Add(1)
	go arb.loop(arb.reqs, arb.stopped)
}

func (arb *Arbiter) Stop() {
	arb.mu.Lock()
	if !arb.running {
		arb.mu.Unlock()
		return
	}
	arb.running = false
	close(arb.stopped)
	arb.mu.Unlock()
	arb.wg.Wait()
}

func (arb *Arbiter) loop(reqs chan *arbitrateRequest, stopped chan struct{}) {
	defer arb.wg.Done()
	for {
		select {
		case <-stopped:
			return
		case req := <-reqs:
			var res arbitrateResult
			switch req.kind {
			case arbitrateNeed:
				res.freed, res.err = arb.Arbitrate(req.ctx, req.need)
			case arbitrateThreshold:
				res.freed, res.err = arb.ArbitrateThreshold(req.ctx)
			}
			req.done <- res
		}
	}
}

// Request runs Arbitrate on the arbiter goroutine and waits for it.
// Without Start it runs on the caller.
func (arb *Arbiter) Request(ctx context.Context, need uint64) (uint64, error) {
	return arb.submit(ctx, arbitrateNeed, need)
}

// RequestThreshold runs ArbitrateThreshold on the arbiter goroutine
// and waits for it.
func (arb *Arbiter) RequestThreshold(ctx context.Context) (uint64, error) {
	return arb.submit(ctx, arbitrateThreshold, 0)
}

func (arb *Arbiter) submit(ctx context.Context, kind arbitrateKind, need uint64) (uint64, error) {
	arb.mu.Lock()
	running := arb.running
	reqs := arb.reqs
	stopped := arb.stopped
	arb.mu.Unlock()
	if !running {
		if kind == arbitrateThreshold {
			return arb.ArbitrateThreshold(ctx)
		}
		return arb.Arbitrate(ctx, need)
	}
	req := &arbitrateRequest{
		ctx:  ctx,
		kind: kind,
		need: need,
		done: make(chan arbitrateResult, 1),
	}
	select {
	case reqs <- req:
	case <-stopped:
		return 0, ErrArbiterStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	res := <-req.done
	return res.freed, res.err
}

func (arb *Arbiter) snapshot() []*participant {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	ret := make([]*participant, 0, len(arb.participants))
	for _, part := range arb.participants {
		ret = append(ret, part)
	}
	return ret
}

// Arbitrate reclaims from the participants holding the most
// reclaimable memory first until need bytes of reservation are freed.
func (arb *Arbiter) Arbitrate(ctx context.Context, need uint64) (uint64, error) {
	cands := btree.NewBTreeG[candidate](candidateLess)
	for _, part := range arb.snapshot() {
		if !part.reclaimer.CanReclaim() {
			continue
		}
		bytes, ok := part.reclaimer.ReclaimableBytes()
		if !ok || bytes == 0 {
			continue
		}
		cands.Set(candidate{part: part, bytes: bytes})
	}

	freed := uint64(0)
	for freed < need {
		if err := ctx.Err(); err != nil {
			return freed, err
		}
		cand, ok := cands.PopMin()
		if !ok {
			break
		}
		n, err := arb.reclaimOne(cand.part, need-freed)
		freed += n
		if err != nil {
			return freed, err
		}
	}
	util.Debug("arbitrate done",
		zap.String("need", util.SuccinctBytes(int64(need))),
		zap.String("freed", util.SuccinctBytes(int64(freed))))
	return freed, nil
}

// ArbitrateThreshold reclaims every participant whose pool usage is
// beyond its threshold.
func (arb *Arbiter) ArbitrateThreshold(ctx context.Context) (uint64, error) {
	freed := uint64(0)
	for _, part := range arb.snapshot() {
		if err := ctx.Err(); err != nil {
			return freed, err
		}
		if part.threshold <= 0 || !part.reclaimer.CanReclaim() {
			continue
		}
		usage := part.reclaimer.Pool().CurrentBytes()
		if usage <= part.threshold {
			continue
		}
		n, err := arb.reclaimOne(part, uint64(usage))
		freed += n
		if err != nil {
			return freed, err
		}
	}
	return freed, nil
}

func (arb *Arbiter) reclaimOne(part *participant, target uint64) (uint64, error) {
	pool := part.reclaimer.Pool()
	before := pool.ReservedBytes()
	start := time.Now()
	stats := ReclaimStats{}
	err := part.reclaimer.Reclaim(target, &stats)
	after := pool.ReservedBytes()
	freed := uint64(0)
	if before > after {
		freed = uint64(before - after)
	}
	stats.ReclaimExecTime += time.Since(start)
	stats.ReclaimedBytes += freed
	if stats.NumNonReclaimableAttempts == 0 && err == nil {
		stats.NumReclaims++
	}

	arb.mu.Lock()
	part.stats.Add(stats)
	arb.mu.Unlock()

	if err != nil {
		return freed, errors.Wrapf(err, "reclaim %s", pool.Name())
	}
	return freed, nil
}
