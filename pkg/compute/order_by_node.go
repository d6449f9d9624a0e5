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

	"github.com/xlab/treeprint"

	"github.com/daviszhen/sortexec/pkg/common"
)

// OrderByNode is the plan of an order by. The output schema equals the
// input schema.
type OrderByNode struct {
	Id          string
	OutputTypes []common.LType
	OutputNames []string
	OrderBys    []*Expr
	//spilling can be turned off for one node
	DisableSpill bool
}

func (node *OrderByNode) CanSpill(qc *QueryConfig) bool {
	return !node.DisableSpill &&
		qc.SpillEnabled() &&
		qc.OrderBySpillEnabled()
}

func (node *OrderByNode) Copy() *OrderByNode {
	ret := &OrderByNode{
		Id:           node.Id,
		OutputTypes:  common.CopyLTypes(node.OutputTypes...),
		OutputNames:  append([]string(nil), node.OutputNames...),
		DisableSpill: node.DisableSpill,
	}
	for _, by := range node.OrderBys {
		ret.OrderBys = append(ret.OrderBys, copyExpr(by))
	}
	return ret
}

func (node *OrderByNode) String() string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("OrderBy[%s]", node.Id))
	outputs := tree.AddBranch("outputs")
	for i, typ := range node.OutputTypes {
		name := fmt.Sprintf("#%d", i)
		if i < len(node.OutputNames) {
			name = node.OutputNames[i]
		}
		outputs.AddMetaNode(typ.String(), name)
	}
	keys := tree.AddBranch("keys")
	for _, by := range node.OrderBys {
		by.Print(keys, "")
	}
	return tree.String()
}
