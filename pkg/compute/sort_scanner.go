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
	"github.com/daviszhen/sortexec/pkg/chunk"
)

// PayloadScanner emits the rows of a sorted LocalSort in order.
type PayloadScanner struct {
	_sort         *LocalSort
	_totalCount   int
	_totalScanned int
}

func (scan *PayloadScanner) Remaining() int {
	return scan._totalCount - scan._totalScanned
}

// Scan appends up to the free capacity of output.
func (scan *PayloadScanner) Scan(output *chunk.Chunk) {
	count := min(output.Cap()-output.Card(), scan.Remaining())
	for i := 0; i < count; i++ {
		src, row := scan._sort.row(scan._totalScanned)
		output.AppendRow(src, row)
		scan._totalScanned++
	}
}
