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
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
	"github.com/daviszhen/sortexec/pkg/compute"
)

// splitList splits s on commas outside parentheses.
func splitList(s string) []string {
	ret := make([]string, 0)
	depth := 0
	start := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				ret = append(ret, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if last := strings.TrimSpace(s[start:]); last != "" || len(ret) > 0 {
		ret = append(ret, last)
	}
	return ret
}

// parseSchema parses "name:type,..." like "a:int,b:decimal(10,2)".
func parseSchema(s string) ([]common.LType, []string, error) {
	items := splitList(s)
	if len(items) == 0 {
		return nil, nil, errors.New("empty schema")
	}
	types := make([]common.LType, 0, len(items))
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, typStr, ok := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, nil, errors.Newf("invalid column %q, expect name:type", item)
		}
		typ, err := common.ParseLType(typStr)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "column %s", name)
		}
		types = append(types, typ)
		names = append(names, name)
	}
	return types, names, nil
}

// parseKeys parses "a desc nulls last,b" into order by items. An
// integer that is not a column name is kept as a literal key.
func parseKeys(s string, names []string, types []common.LType) ([]*compute.Expr, error) {
	items := splitList(s)
	if len(items) == 0 {
		return nil, errors.New("empty sort keys")
	}
	ret := make([]*compute.Expr, 0, len(items))
	for _, item := range items {
		fields := strings.Fields(strings.ToLower(item))
		if len(fields) == 0 {
			return nil, errors.Newf("empty sort key in %q", s)
		}
		var child *compute.Expr
		pos := indexOf(names, fields[0])
		if pos >= 0 {
			child = compute.ColumnExpr(names[pos], types[pos], pos)
		} else if v, err := strconv.ParseInt(fields[0], 10, 64); err == nil {
			child = compute.ConstExpr(chunk.BigintValue(v))
		} else {
			return nil, errors.Newf("unknown sort column %q", fields[0])
		}

		desc := false
		nullsTyp := compute.OBNT_DEFAULT
		rest := fields[1:]
		if len(rest) > 0 && (rest[0] == "asc" || rest[0] == "desc") {
			desc = rest[0] == "desc"
			rest = rest[1:]
		}
		switch strings.Join(rest, " ") {
		case "":
		case "nulls first":
			nullsTyp = compute.OBNT_NULLS_FIRST
		case "nulls last":
			nullsTyp = compute.OBNT_NULLS_LAST
		default:
			return nil, errors.Newf("invalid sort key %q", item)
		}
		ret = append(ret, compute.OrderByExpr(child, desc, nullsTyp))
	}
	return ret, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}
