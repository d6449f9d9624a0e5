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
	"context"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// RunSet owns the runs of one operator in creation order.
type RunSet struct {
	runs []*Run
}

func (rs *RunSet) Add(run *Run) {
	rs.runs = append(rs.runs, run)
}

func (rs *RunSet) Runs() []*Run {
	return rs.runs
}

func (rs *RunSet) Len() int {
	return len(rs.runs)
}

func (rs *RunSet) Rows() uint64 {
	cnt := uint64(0)
	for _, run := range rs.runs {
		cnt += run.Rows
	}
	return cnt
}

// OpenAll opens a reader for every run. Readers are in run order.
// On error every reader already opened is closed.
func (rs *RunSet) OpenAll(ctx context.Context, bufSize int) ([]*RunReader, error) {
	readers := make([]*RunReader, len(rs.runs))
	g, _ := errgroup.WithContext(ctx)
	for i, run := range rs.runs {
		g.Go(func() error {
			rr, err := run.Open(bufSize)
			if err != nil {
				return err
			}
			readers[i] = rr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = CloseReaders(readers)
		return nil, err
	}
	return readers, nil
}

// CloseReaders closes the non nil readers and collects the errors.
func CloseReaders(readers []*RunReader) error {
	var result *multierror.Error
	for _, rr := range readers {
		if rr == nil {
			continue
		}
		if err := rr.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// RemoveAll deletes every run file, continuing past failures.
func (rs *RunSet) RemoveAll() error {
	var result *multierror.Error
	for _, run := range rs.runs {
		if err := run.Remove(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	rs.runs = nil
	return result.ErrorOrNil()
}
