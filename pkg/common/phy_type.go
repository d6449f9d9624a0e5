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

package common

import "fmt"

type PhyType int

const (
	NA      PhyType = 0
	BOOL    PhyType = 1
	INT32   PhyType = 7
	INT64   PhyType = 9
	DOUBLE  PhyType = 12
	VARCHAR PhyType = 200
	DECIMAL PhyType = 209
	INVALID PhyType = 255
)

var pTypeToStr = map[PhyType]string{
	NA:      "NA",
	BOOL:    "BOOL",
	INT32:   "INT32",
	INT64:   "INT64",
	DOUBLE:  "DOUBLE",
	VARCHAR: "VARCHAR",
	DECIMAL: "DECIMAL",
	INVALID: "INVALID",
}

func (pt PhyType) String() string {
	if s, has := pTypeToStr[pt]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", pt))
}

// Size is the in-memory width of one value. Variable width types
// report the size of their header.
func (pt PhyType) Size() int {
	switch pt {
	case BOOL:
		return 1
	case INT32:
		return 4
	case INT64, DOUBLE:
		return 8
	case VARCHAR:
		return 16
	case DECIMAL:
		return 24
	case NA:
		return 0
	default:
		panic("usp")
	}
}
