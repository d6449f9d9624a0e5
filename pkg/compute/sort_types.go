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

import "fmt"

type OrderType int

const (
	OT_INVALID OrderType = iota
	OT_DEFAULT
	OT_ASC
	OT_DESC
)

func (ot OrderType) String() string {
	switch ot {
	case OT_DEFAULT, OT_ASC:
		return "asc"
	case OT_DESC:
		return "desc"
	}
	return "invalid"
}

type OrderByNullType int

const (
	OBNT_INVALID OrderByNullType = iota
	OBNT_DEFAULT
	OBNT_NULLS_FIRST
	OBNT_NULLS_LAST
)

func (nt OrderByNullType) String() string {
	switch nt {
	case OBNT_DEFAULT:
		return "nulls default"
	case OBNT_NULLS_FIRST:
		return "nulls first"
	case OBNT_NULLS_LAST:
		return "nulls last"
	}
	return "invalid"
}

type NullHandling int

const (
	//null compares as a value placed by NullsFirst
	NullAsValue NullHandling = iota
	//any comparison with null is unknown
	NullAsIndeterminate
)

type CompareFlags struct {
	NullsFirst   bool
	Ascending    bool
	EqualsOnly   bool
	NullHandling NullHandling
}

// NewCompareFlags maps an order by item to flags. Without an explicit
// null order, nulls go last for ascending and first for descending.
func NewCompareFlags(ot OrderType, nt OrderByNullType) CompareFlags {
	ret := CompareFlags{
		Ascending:    ot != OT_DESC,
		NullHandling: NullAsValue,
	}
	switch nt {
	case OBNT_NULLS_FIRST:
		ret.NullsFirst = true
	case OBNT_NULLS_LAST:
		ret.NullsFirst = false
	default:
		ret.NullsFirst = !ret.Ascending
	}
	return ret
}

func (flags CompareFlags) String() string {
	order := "asc"
	if !flags.Ascending {
		order = "desc"
	}
	nulls := "nulls last"
	if flags.NullsFirst {
		nulls = "nulls first"
	}
	return fmt.Sprintf("%s %s", order, nulls)
}

// SortKey is one column of the total order.
type SortKey struct {
	Column int
	Flags  CompareFlags
}

type SortState int

const (
	SS_INIT SortState = iota
	SS_SORT
	SS_SCAN
	SS_DONE
	SS_CLOSED
)

func (ss SortState) String() string {
	switch ss {
	case SS_INIT:
		return "init"
	case SS_SORT:
		return "sort"
	case SS_SCAN:
		return "scan"
	case SS_DONE:
		return "done"
	case SS_CLOSED:
		return "closed"
	}
	return fmt.Sprintf("invalid %d", int(ss))
}
