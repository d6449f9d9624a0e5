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

package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/compute"
	"github.com/daviszhen/sortexec/pkg/memory"
	"github.com/daviszhen/sortexec/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initSortCmd()
}

var sorterCfg = util.DefaultConfig()

type sortOptions struct {
	Input       string
	Format      string
	Schema      string
	Keys        string
	Header      bool
	Output      string
	MemoryLimit string
	Threshold   string
}

var sortOpts = &sortOptions{}

///root cmd

var info = "sorter"
var RootCmd = &cobra.Command{
	Use:          "sorter",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use sorter --help or -h")
	},
}

//sort cmd

var sortInfo = "sort a csv or parquet file, spilling to disk when memory runs short"
var sortCmd = &cobra.Command{
	Use:   "sort",
	Short: sortInfo,
	Long:  sortInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := initSortCfg()
		if err != nil {
			return err
		}
		err = util.InitLogger(sorterCfg.Log)
		if err != nil {
			return err
		}
		defer util.SyncLogger()
		return runSort(cmd.Context(), sorterCfg, sortOpts)
	},
}

func initSortCfg() error {
	err := viper.Unmarshal(sorterCfg)
	if err != nil {
		return errors.Wrapf(err, "decode config")
	}
	if sortOpts.MemoryLimit != "" {
		n, err := humanize.ParseBytes(sortOpts.MemoryLimit)
		if err != nil {
			return errors.Wrapf(err, "memory limit")
		}
		sorterCfg.Memory.QueryCapacity = int64(n)
	}
	if sortOpts.Threshold != "" {
		n, err := humanize.ParseBytes(sortOpts.Threshold)
		if err != nil {
			return errors.Wrapf(err, "threshold")
		}
		sorterCfg.Query.OrderBySpillMemoryThreshold = int64(n)
	}
	return nil
}

func initSortCmd() {
	RootCmd.AddCommand(sortCmd)
	flags := sortCmd.Flags()
	flags.StringVar(&sortOpts.Input, "input", "", "input file")
	flags.StringVar(&sortOpts.Format, "format", "csv", "input format. csv, parquet")
	flags.StringVar(&sortOpts.Schema, "schema", "", "input columns. a:int,b:varchar")
	flags.StringVar(&sortOpts.Keys, "keys", "", "sort keys. a desc nulls last,b")
	flags.BoolVar(&sortOpts.Header, "header", false, "csv input has a header line")
	flags.StringVar(&sortOpts.Output, "output", "", "output csv file. stdout if empty")
	flags.StringVar(&sortOpts.MemoryLimit, "memory-limit", "", "query memory limit. 64MiB")
	flags.StringVar(&sortOpts.Threshold, "threshold", "", "spill when the order by holds more than this. 16MiB")
	flags.String("spill-dir", "", "spill directory")
	flags.String("compression", "snappy", "spill compression. none, snappy, zstd")
	flags.Bool("print-stats", false, "print operator stats")
	_ = sortCmd.MarkFlagRequired("input")
	_ = sortCmd.MarkFlagRequired("schema")
	_ = sortCmd.MarkFlagRequired("keys")

	_ = viper.BindPFlag("spill.dir", flags.Lookup("spill-dir"))
	_ = viper.BindPFlag("spill.compression", flags.Lookup("compression"))
	_ = viper.BindPFlag("debug.printStats", flags.Lookup("print-stats"))
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "sorter.toml"

func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if !util.FileIsValid(fpath) {
			continue
		}
		viper.SetConfigFile(fpath)
		err := viper.ReadInConfig()
		if err != nil {
			util.Error("viper load config file failed",
				zap.String("fpath", fpath),
				zap.Error(err))
			continue
		}
		return
	}
	util.Warn("sorter.toml does not exist. use defaults")
}

func runSort(ctx context.Context, cfg *util.Config, opts *sortOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	types, names, err := parseSchema(opts.Schema)
	if err != nil {
		return err
	}
	orderBys, err := parseKeys(opts.Keys, names, types)
	if err != nil {
		return err
	}
	qc := compute.NewQueryConfig(cfg)

	root := memory.NewRootPool("query", cfg.Memory.QueryCapacity, cfg.Memory.ReservationQuantum)
	node := &compute.OrderByNode{
		Id:          "orderby",
		OutputTypes: types,
		OutputNames: names,
		OrderBys:    orderBys,
	}
	op, err := compute.NewOrderBy(&compute.OperatorCtx{
		OperatorId:  1,
		PlanNodeId:  node.Id,
		Pool:        root.AddChild(node.Id, true),
		QueryConfig: qc,
	}, node)
	if err != nil {
		return err
	}
	scan, err := compute.NewFileScan(&compute.FileScanInfo{
		FilePath: opts.Input,
		Format:   opts.Format,
		Types:    types,
		Names:    names,
		Header:   opts.Header,
	}, qc.PreferredOutputBatchRows())
	if err != nil {
		_ = op.Close()
		return err
	}

	out := os.Stdout
	if opts.Output != "" {
		out, err = os.OpenFile(opts.Output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			_ = scan.Close()
			_ = op.Close()
			return errors.Wrapf(err, "open %s", opts.Output)
		}
		defer out.Close()
	}
	writer := csv.NewWriter(out)

	arbiter := memory.NewArbiter()
	arbiter.Start()
	defer arbiter.Stop()

	driver := compute.NewDriver(scan, op, root, arbiter)
	err = driver.Run(ctx, func(c *chunk.Chunk) error {
		return c.SaveToCsv(writer)
	})
	if err != nil {
		return err
	}
	writer.Flush()
	if err = writer.Error(); err != nil {
		return err
	}

	if cfg.Debug.PrintStats {
		fmt.Fprintln(os.Stderr, node.String())
		for _, stats := range driver.Stats() {
			fmt.Fprintln(os.Stderr, stats.String())
		}
		fmt.Fprintln(os.Stderr, strings.TrimSpace(arbiter.Stats().String()))
		fmt.Fprintln(os.Stderr, "peak", root.String())
		fmt.Fprintln(os.Stderr, "took", driver.Elapsed())
	}
	return nil
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
