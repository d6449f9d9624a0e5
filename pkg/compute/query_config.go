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

	"github.com/huandu/go-clone"

	"github.com/daviszhen/sortexec/pkg/spill"
	"github.com/daviszhen/sortexec/pkg/util"
)

// QueryConfig is the per query view of the settings. It owns a deep
// copy so later changes to the source do not leak into running
// operators.
type QueryConfig struct {
	_cfg *util.Config
}

func NewQueryConfig(cfg *util.Config) *QueryConfig {
	if cfg == nil {
		cfg = util.DefaultConfig()
	}
	return &QueryConfig{
		_cfg: clone.Clone(cfg).(*util.Config),
	}
}

func (qc *QueryConfig) PreferredOutputBatchRows() int {
	if qc._cfg.Query.PreferredOutputBatchRows <= 0 {
		return util.DefaultVectorSize
	}
	return qc._cfg.Query.PreferredOutputBatchRows
}

// OrderBySpillMemoryThreshold is the usage beyond which an order by is
// asked to spill. 0 disables it.
func (qc *QueryConfig) OrderBySpillMemoryThreshold() int64 {
	return qc._cfg.Query.OrderBySpillMemoryThreshold
}

func (qc *QueryConfig) SpillEnabled() bool {
	return qc._cfg.Spill.Enabled
}

func (qc *QueryConfig) OrderBySpillEnabled() bool {
	return qc._cfg.Spill.OrderByEnabled
}

func (qc *QueryConfig) Memory() util.MemoryOptions {
	return qc._cfg.Memory
}

// MakeSpillConfig builds the spill settings of one operator. Files of
// different operators get different prefixes.
func (qc *QueryConfig) MakeSpillConfig(operatorId int) (*spill.Config, error) {
	opts := clone.Clone(qc._cfg.Spill).(util.SpillOptions)
	prefix := opts.FilePrefix
	if prefix == "" {
		prefix = "spill"
	}
	opts.FilePrefix = fmt.Sprintf("%s-op%d", prefix, operatorId)
	return spill.NewConfig(opts)
}
