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

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/daviszhen/sortexec/pkg/util"
)

type LType struct {
	Id    LTypeId
	PTyp  PhyType
	Width int
	Scale int
}

func (lt LType) Serialize(serial util.Serialize) error {
	err := util.Write[int32](int32(lt.Id), serial)
	if err != nil {
		return err
	}
	err = util.Write[int32](int32(lt.Width), serial)
	if err != nil {
		return err
	}
	return util.Write[int32](int32(lt.Scale), serial)
}

func DeserializeLType(deserial util.Deserialize) (LType, error) {
	var id, width, scale int32
	err := util.Read[int32](&id, deserial)
	if err != nil {
		return LType{}, err
	}
	err = util.Read[int32](&width, deserial)
	if err != nil {
		return LType{}, err
	}
	err = util.Read[int32](&scale, deserial)
	if err != nil {
		return LType{}, err
	}
	ret := LType{
		Id:    LTypeId(id),
		Width: int(width),
		Scale: int(scale),
	}
	ret.PTyp = ret.GetInternalType()
	if ret.PTyp == INVALID {
		return LType{}, errors.Newf("invalid logical type id %d", id)
	}
	return ret, nil
}

func MakeLType(id LTypeId) LType {
	ret := LType{Id: id}
	ret.PTyp = ret.GetInternalType()
	return ret
}

func BooleanType() LType {
	return MakeLType(LTID_BOOLEAN)
}

func IntegerType() LType {
	return MakeLType(LTID_INTEGER)
}

func BigintType() LType {
	return MakeLType(LTID_BIGINT)
}

func DoubleType() LType {
	return MakeLType(LTID_DOUBLE)
}

func VarcharType() LType {
	return MakeLType(LTID_VARCHAR)
}

func DateType() LType {
	return MakeLType(LTID_DATE)
}

func DecimalType(width, scale int) LType {
	ret := MakeLType(LTID_DECIMAL)
	ret.Width = width
	ret.Scale = scale
	return ret
}

func CopyLTypes(typs ...LType) []LType {
	ret := make([]LType, 0, len(typs))
	ret = append(ret, typs...)
	return ret
}

func (lt LType) GetInternalType() PhyType {
	switch lt.Id {
	case LTID_NULL:
		return NA
	case LTID_BOOLEAN:
		return BOOL
	case LTID_INTEGER, LTID_DATE:
		return INT32
	case LTID_BIGINT:
		return INT64
	case LTID_DOUBLE:
		return DOUBLE
	case LTID_VARCHAR:
		return VARCHAR
	case LTID_DECIMAL:
		return DECIMAL
	default:
		return INVALID
	}
}

func (lt LType) Equal(o LType) bool {
	if lt.Id != o.Id {
		return false
	}
	if lt.Id == LTID_DECIMAL {
		return lt.Width == o.Width && lt.Scale == o.Scale
	}
	return true
}

func (lt LType) String() string {
	switch lt.Id {
	case LTID_NULL:
		return "null"
	case LTID_BOOLEAN:
		return "boolean"
	case LTID_INTEGER:
		return "int"
	case LTID_BIGINT:
		return "bigint"
	case LTID_DOUBLE:
		return "double"
	case LTID_VARCHAR:
		return "varchar"
	case LTID_DATE:
		return "date"
	case LTID_DECIMAL:
		return fmt.Sprintf("decimal(%d,%d)", lt.Width, lt.Scale)
	default:
		return lt.Id.String()
	}
}

// ParseLType parses the names printed by LType.String.
func ParseLType(s string) (LType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "boolean", "bool":
		return BooleanType(), nil
	case "int", "integer", "int32":
		return IntegerType(), nil
	case "bigint", "int64":
		return BigintType(), nil
	case "double", "float64":
		return DoubleType(), nil
	case "varchar", "string", "text":
		return VarcharType(), nil
	case "date":
		return DateType(), nil
	}
	if strings.HasPrefix(s, "decimal(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(s[len("decimal("):len(s)-1], ",")
		if len(parts) == 2 {
			w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			sc, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 == nil && err2 == nil && sc <= w {
				return DecimalType(w, sc), nil
			}
		}
	}
	return LType{}, errors.Newf("unsupported type %q", s)
}
