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

	"github.com/cockroachdb/errors"
	"github.com/huandu/go-clone"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/sortexec/pkg/chunk"
	"github.com/daviszhen/sortexec/pkg/common"
)

type ET int

const (
	ET_Column    ET = iota //column
	ET_IConst              //integer
	ET_DecConst            //decimal
	ET_SConst              //string
	ET_FConst              //float
	ET_DateConst           //date
	ET_BConst              // bool
	ET_NConst              // null

	ET_Orderby
)

func (et ET) String() string {
	switch et {
	case ET_Column:
		return "column"
	case ET_IConst, ET_DecConst, ET_SConst, ET_FConst, ET_DateConst, ET_BConst, ET_NConst:
		return "const"
	case ET_Orderby:
		return "orderby"
	}
	return fmt.Sprintf("usp %d", int(et))
}

// ColumnBind is (relation tag, column position).
type ColumnBind [2]uint64

func (b ColumnBind) table() uint64 {
	return b[0]
}

func (b ColumnBind) column() uint64 {
	return b[1]
}

func (b ColumnBind) String() string {
	return fmt.Sprintf("[%d %d]", b.table(), b.column())
}

// ConstantChannel is the channel of an expression that reads no
// column.
const ConstantChannel = -1

type Expr struct {
	Typ     ET
	DataTyp common.LType

	Children []*Expr

	Table    string     // table
	Name     string     // column
	ColRef   ColumnBind // relationTag, columnPos
	Svalue   string
	Ivalue   int64
	Fvalue   float64
	Bvalue   bool
	Desc     bool            // in orderby
	NullsTyp OrderByNullType // in orderby
	Alias    string
}

func ColumnExpr(name string, typ common.LType, pos int) *Expr {
	return &Expr{
		Typ:     ET_Column,
		DataTyp: typ,
		Name:    name,
		ColRef:  ColumnBind{0, uint64(pos)},
	}
}

// ConstExpr wraps val as a literal.
func ConstExpr(val *chunk.Value) *Expr {
	ret := &Expr{DataTyp: val.Typ}
	if val.IsNull {
		ret.Typ = ET_NConst
		return ret
	}
	switch val.Typ.Id {
	case common.LTID_INTEGER, common.LTID_BIGINT:
		ret.Typ = ET_IConst
		ret.Ivalue = val.I64
	case common.LTID_DATE:
		ret.Typ = ET_DateConst
		ret.Ivalue = val.I64
		ret.Svalue = val.String()
	case common.LTID_DOUBLE:
		ret.Typ = ET_FConst
		ret.Fvalue = val.F64
	case common.LTID_VARCHAR:
		ret.Typ = ET_SConst
		ret.Svalue = val.Str
	case common.LTID_DECIMAL:
		ret.Typ = ET_DecConst
		ret.Svalue = val.Dec.String()
	case common.LTID_BOOLEAN:
		ret.Typ = ET_BConst
		ret.Bvalue = val.Bool
	default:
		panic(fmt.Sprintf("usp const type %s", val.Typ))
	}
	return ret
}

func OrderByExpr(child *Expr, desc bool, nullsTyp OrderByNullType) *Expr {
	return &Expr{
		Typ:      ET_Orderby,
		DataTyp:  child.DataTyp,
		Children: []*Expr{child},
		Desc:     desc,
		NullsTyp: nullsTyp,
	}
}

func (e *Expr) IsConstant() bool {
	switch e.Typ {
	case ET_IConst, ET_DecConst, ET_SConst, ET_FConst, ET_DateConst, ET_BConst, ET_NConst:
		return true
	}
	return false
}

func (e *Expr) orderType() OrderType {
	if e.Desc {
		return OT_DESC
	}
	return OT_ASC
}

func appendMeta(meta, s string) string {
	return fmt.Sprintf("%s %s", meta, s)
}

func (e *Expr) Print(tree treeprint.Tree, meta string) {
	if e == nil {
		return
	}
	head := appendMeta(meta, e.DataTyp.String())
	switch e.Typ {
	case ET_Column:
		tree.AddMetaNode(head, fmt.Sprintf("(%s.%s,%v)",
			e.Table, e.Name,
			e.ColRef))
	case ET_SConst:
		tree.AddMetaNode(head, fmt.Sprintf("(%s)", e.Svalue))
	case ET_IConst:
		tree.AddMetaNode(head, fmt.Sprintf("(%d)", e.Ivalue))
	case ET_DateConst:
		tree.AddMetaNode(head, fmt.Sprintf("(%s)", e.Svalue))
	case ET_BConst:
		tree.AddMetaNode(head, fmt.Sprintf("(%v)", e.Bvalue))
	case ET_FConst:
		tree.AddMetaNode(head, fmt.Sprintf("(%v)", e.Fvalue))
	case ET_DecConst:
		tree.AddMetaNode(head, fmt.Sprintf("(%s %d %d)", e.Svalue, e.DataTyp.Width, e.DataTyp.Scale))
	case ET_NConst:
		tree.AddMetaNode(head, "(null)")
	case ET_Orderby:
		branch := tree.AddMetaBranch(head,
			fmt.Sprintf("%s %s", e.orderType(), e.NullsTyp))
		e.Children[0].Print(branch, "")
	default:
		panic(fmt.Sprintf("usp expr type %d", e.Typ))
	}
}

func (e *Expr) String() string {
	tree := treeprint.NewWithRoot("expr")
	e.Print(tree, "")
	return tree.String()
}

func copyExpr(e *Expr) *Expr {
	return clone.Clone(e).(*Expr)
}

// exprToChannel maps e to the position of the column it reads in
// types. Literals map to ConstantChannel.
func exprToChannel(e *Expr, types []common.LType) (int, error) {
	if e == nil {
		return 0, errors.New("nil expression")
	}
	if e.IsConstant() {
		return ConstantChannel, nil
	}
	if e.Typ != ET_Column {
		return 0, errors.Newf("expression %s is not a column", e.Typ)
	}
	pos := int(e.ColRef.column())
	if pos >= len(types) {
		return 0, errors.Newf("column %s.%s position %d out of range %d",
			e.Table, e.Name, pos, len(types))
	}
	if !types[pos].Equal(e.DataTyp) {
		return 0, errors.Newf("column %s.%s has type %s, expect %s",
			e.Table, e.Name, types[pos], e.DataTyp)
	}
	return pos, nil
}
