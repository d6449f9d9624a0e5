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

package chunk

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/govalues/decimal"

	"github.com/daviszhen/sortexec/pkg/common"
)

type Value struct {
	Typ    common.LType
	IsNull bool
	//value
	Bool bool
	//INTEGER, BIGINT, DATE(days since epoch)
	I64 int64
	F64 float64
	Str string
	Dec decimal.Decimal
}

func (val Value) String() string {
	if val.IsNull {
		return "NULL"
	}
	switch val.Typ.Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		return strconv.FormatInt(val.I64, 10)
	case common.LTID_BOOLEAN:
		return fmt.Sprintf("%v", val.Bool)
	case common.LTID_VARCHAR:
		return val.Str
	case common.LTID_DECIMAL:
		return val.Dec.String()
	case common.LTID_DATE:
		return DaysToDate(val.I64).Format(time.DateOnly)
	case common.LTID_DOUBLE:
		return strconv.FormatFloat(val.F64, 'g', -1, 64)
	case common.LTID_NULL:
		return "NULL"
	default:
		panic("usp")
	}
}

func NullValue(typ common.LType) *Value {
	return &Value{Typ: typ, IsNull: true}
}

func IntegerValue(v int32) *Value {
	return &Value{Typ: common.IntegerType(), I64: int64(v)}
}

func BigintValue(v int64) *Value {
	return &Value{Typ: common.BigintType(), I64: v}
}

func DoubleValue(v float64) *Value {
	return &Value{Typ: common.DoubleType(), F64: v}
}

func VarcharValue(v string) *Value {
	return &Value{Typ: common.VarcharType(), Str: v}
}

func BooleanValue(v bool) *Value {
	return &Value{Typ: common.BooleanType(), Bool: v}
}

func DateValue(days int32) *Value {
	return &Value{Typ: common.DateType(), I64: int64(days)}
}

func DecimalValue(typ common.LType, d decimal.Decimal) *Value {
	return &Value{Typ: typ, Dec: d}
}

func DaysToDate(days int64) time.Time {
	return time.Unix(days*86400, 0).UTC()
}

func DateToDays(t time.Time) int32 {
	return int32(t.Unix() / 86400)
}

// ParseValue converts a text field into a value of typ.
// Empty fields and NULL are nulls.
func ParseValue(field string, typ common.LType) (*Value, error) {
	if field == "" || strings.EqualFold(field, "null") {
		return NullValue(typ), nil
	}
	val := &Value{Typ: typ}
	var err error
	switch typ.Id {
	case common.LTID_BOOLEAN:
		val.Bool, err = strconv.ParseBool(field)
	case common.LTID_INTEGER:
		val.I64, err = strconv.ParseInt(field, 10, 32)
	case common.LTID_BIGINT:
		val.I64, err = strconv.ParseInt(field, 10, 64)
	case common.LTID_DOUBLE:
		val.F64, err = strconv.ParseFloat(field, 64)
	case common.LTID_VARCHAR:
		val.Str = field
	case common.LTID_DATE:
		var d time.Time
		d, err = time.Parse(time.DateOnly, field)
		if err == nil {
			val.I64 = int64(DateToDays(d))
		}
	case common.LTID_DECIMAL:
		val.Dec, err = decimal.ParseExact(field, typ.Scale)
	default:
		return nil, errors.Newf("unsupported type %s", typ)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q as %s", field, typ)
	}
	return val, nil
}

// FromAny converts a native go value, as produced by file readers,
// into a value of typ.
func FromAny(field any, typ common.LType) (*Value, error) {
	if field == nil {
		return NullValue(typ), nil
	}
	val := &Value{Typ: typ}
	switch typ.Id {
	case common.LTID_BOOLEAN:
		b, ok := field.(bool)
		if !ok {
			return nil, errors.Newf("expect bool, got %T", field)
		}
		val.Bool = b
	case common.LTID_INTEGER, common.LTID_BIGINT, common.LTID_DATE:
		switch v := field.(type) {
		case int32:
			val.I64 = int64(v)
		case int64:
			val.I64 = v
		case int:
			val.I64 = int64(v)
		default:
			return nil, errors.Newf("expect integer, got %T", field)
		}
	case common.LTID_DOUBLE:
		switch v := field.(type) {
		case float32:
			val.F64 = float64(v)
		case float64:
			val.F64 = v
		default:
			return nil, errors.Newf("expect float, got %T", field)
		}
	case common.LTID_VARCHAR:
		s, ok := field.(string)
		if !ok {
			return nil, errors.Newf("expect string, got %T", field)
		}
		val.Str = s
	case common.LTID_DECIMAL:
		var unscaled int64
		switch v := field.(type) {
		case int32:
			unscaled = int64(v)
		case int64:
			unscaled = v
		default:
			return nil, errors.Newf("expect unscaled decimal, got %T", field)
		}
		d, err := decimal.New(unscaled, typ.Scale)
		if err != nil {
			return nil, err
		}
		val.Dec = d
	default:
		return nil, errors.Newf("unsupported type %s", typ)
	}
	return val, nil
}
