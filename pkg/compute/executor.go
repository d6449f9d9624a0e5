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
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/memory"
	"github.com/daviszhen/sortexec/pkg/util"
)

// Driver runs a source into an order by on one goroutine. Between
// batches it asks the arbiter for memory, which may reclaim the order
// by while the driver waits.
type Driver struct {
	_source  Operator
	_orderBy *OrderBy
	_root    memory.Pool
	_arbiter *memory.Arbiter
	_partId  uint64
	_elapsed time.Duration
}

// NewDriver registers orderBy with arbiter using its spill memory
// threshold. root is the query pool and arbiter may be nil.
func NewDriver(source Operator, orderBy *OrderBy, root memory.Pool, arbiter *memory.Arbiter) *Driver {
	d := &Driver{
		_source:  source,
		_orderBy: orderBy,
		_root:    root,
		_arbiter: arbiter,
	}
	if arbiter != nil {
		d._partId = arbiter.Register(orderBy, orderBy.SpillMemoryThreshold())
	}
	return d
}

// Run sorts everything the source produces and hands the sorted batches
// to sink. On error the order by is aborted. Both operators are closed
// when Run returns.
func (d *Driver) Run(ctx context.Context, sink func(*chunk.Chunk) error) (err error) {
	start := time.Now()
	defer func() {
		if rErr := recover(); rErr != nil {
			err = multierror.Append(err, util.ConvertPanicError(rErr))
		}
		if err != nil {
			d._orderBy.Abort()
			d._source.Abort()
		}
		var cErr error
		if e := d._source.Close(); e != nil {
			cErr = multierror.Append(cErr, e)
		}
		if e := d._orderBy.Close(); e != nil {
			cErr = multierror.Append(cErr, e)
		}
		if cErr != nil && err == nil {
			err = cErr
		}
		if d._arbiter != nil {
			d._arbiter.Unregister(d._partId)
			d._partId = 0
		}
		d._elapsed = time.Since(start)
		util.Debug("driver done",
			zap.Duration("elapsed", d._elapsed),
			zap.Error(err))
	}()

	err = d.runInput(ctx)
	if err != nil {
		return err
	}
	err = d._orderBy.NoMoreInput()
	if err != nil {
		return err
	}
	for !d._orderBy.IsFinished() {
		if err = ctx.Err(); err != nil {
			return err
		}
		output, err := d._orderBy.GetOutput()
		if err != nil {
			return err
		}
		if output == nil {
			continue
		}
		if sink != nil {
			if err = sink(output); err != nil {
				return errors.Wrapf(err, "sink")
			}
		}
	}
	return nil
}

func (d *Driver) runInput(ctx context.Context) error {
	for !d._source.IsFinished() {
		if err := ctx.Err(); err != nil {
			return err
		}
		input, err := d._source.GetOutput()
		if err != nil {
			return errors.Wrapf(err, "%s", d._source.Name())
		}
		if input == nil || input.Card() == 0 {
			continue
		}
		err = d.reserve(ctx, d._orderBy.EstimateSize(input))
		if err != nil {
			return err
		}
		err = d._orderBy.AddInput(input)
		if err != nil {
			return err
		}
		if d._arbiter != nil {
			_, err = d._arbiter.RequestThreshold(ctx)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// reserve makes room in the query pool for need more bytes.
func (d *Driver) reserve(ctx context.Context, need int64) error {
	if d._arbiter == nil || d._root == nil {
		return nil
	}
	capacity := d._root.Capacity()
	if capacity <= 0 {
		return nil
	}
	reserved := d._root.ReservedBytes()
	if reserved+need <= capacity {
		return nil
	}
	freed, err := d._arbiter.Request(ctx, uint64(reserved+need-capacity))
	if err != nil {
		return err
	}
	util.Debug("driver reserve",
		zap.String("need", util.SuccinctBytes(need)),
		zap.String("reserved", util.SuccinctBytes(reserved)),
		zap.String("freed", util.SuccinctBytes(int64(freed))))
	return nil
}

func (d *Driver) Elapsed() time.Duration {
	return d._elapsed
}

// Stats returns the stats of the source and the order by.
func (d *Driver) Stats() []OperatorStats {
	return []OperatorStats{d._source.Stats(), d._orderBy.Stats()}
}
