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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/daviszhen/sortexec/pkg/util"
)

var (
	spillRunsCounter       metric.Int64Counter
	spillBytesCounter      metric.Int64Counter
	spillRowsCounter       metric.Int64Counter
	reclaimRejectedCounter metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/daviszhen/sortexec/pkg/compute")

	var err error

	spillRunsCounter, err = meter.Int64Counter(
		"sortexec.orderby.spill.runs",
		metric.WithDescription("Number of sorted runs written to disk"),
	)
	if err != nil {
		util.Error("failed to create spill.runs counter", zap.Error(err))
	}

	spillBytesCounter, err = meter.Int64Counter(
		"sortexec.orderby.spill.bytes",
		metric.WithDescription("Bytes written to spill files"),
		metric.WithUnit("By"),
	)
	if err != nil {
		util.Error("failed to create spill.bytes counter", zap.Error(err))
	}

	spillRowsCounter, err = meter.Int64Counter(
		"sortexec.orderby.spill.rows",
		metric.WithDescription("Rows written to spill files"),
	)
	if err != nil {
		util.Error("failed to create spill.rows counter", zap.Error(err))
	}

	reclaimRejectedCounter, err = meter.Int64Counter(
		"sortexec.orderby.reclaim.rejected",
		metric.WithDescription("Reclaim requests rejected by an order by"),
	)
	if err != nil {
		util.Error("failed to create reclaim.rejected counter", zap.Error(err))
	}
}

func recordSpillRun(rows, bytes uint64) {
	ctx := context.Background()
	spillRunsCounter.Add(ctx, 1)
	spillRowsCounter.Add(ctx, int64(rows))
	spillBytesCounter.Add(ctx, int64(bytes))
}

func recordReclaimRejected(reason string) {
	reclaimRejectedCounter.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}
