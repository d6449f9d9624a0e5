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

package util

type QueryOptions struct {
	PreferredOutputBatchRows    int   `toml:"preferredOutputBatchRows" mapstructure:"preferredOutputBatchRows"`
	OrderBySpillMemoryThreshold int64 `toml:"orderBySpillMemoryThreshold" mapstructure:"orderBySpillMemoryThreshold"`
}

type SpillOptions struct {
	Enabled         bool   `toml:"enabled" mapstructure:"enabled"`
	OrderByEnabled  bool   `toml:"orderByEnabled" mapstructure:"orderByEnabled"`
	Dir             string `toml:"dir" mapstructure:"dir"`
	FilePrefix      string `toml:"filePrefix" mapstructure:"filePrefix"`
	Compression     string `toml:"compression" mapstructure:"compression"`
	WriteBufferSize int    `toml:"writeBufferSize" mapstructure:"writeBufferSize"`
	WriteBatchRows  int    `toml:"writeBatchRows" mapstructure:"writeBatchRows"`
}

type MemoryOptions struct {
	//0 means unlimited
	QueryCapacity int64 `toml:"queryCapacity" mapstructure:"queryCapacity"`
	//reservations are rounded up to this
	ReservationQuantum int64 `toml:"reservationQuantum" mapstructure:"reservationQuantum"`
}

type LogConfig struct {
	Level       string   `toml:"level" mapstructure:"level"`
	Format      string   `toml:"format" mapstructure:"format"`
	OutputPaths []string `toml:"outputPaths" mapstructure:"outputPaths"`
}

type DebugOptions struct {
	PrintResult bool `toml:"printResult" mapstructure:"printResult"`
	PrintStats  bool `toml:"printStats" mapstructure:"printStats"`
}

type Config struct {
	Query  QueryOptions  `toml:"query" mapstructure:"query"`
	Spill  SpillOptions  `toml:"spill" mapstructure:"spill"`
	Memory MemoryOptions `toml:"memory" mapstructure:"memory"`
	Log    LogConfig     `toml:"log" mapstructure:"log"`
	Debug  DebugOptions  `toml:"debug" mapstructure:"debug"`
}

func DefaultConfig() *Config {
	return &Config{
		Query: QueryOptions{
			PreferredOutputBatchRows:    DefaultVectorSize,
			OrderBySpillMemoryThreshold: 0,
		},
		Spill: SpillOptions{
			Enabled:         true,
			OrderByEnabled:  true,
			FilePrefix:      "orderby",
			Compression:     "snappy",
			WriteBufferSize: 1 << 20,
			WriteBatchRows:  DefaultVectorSize,
		},
		Memory: MemoryOptions{
			ReservationQuantum: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
