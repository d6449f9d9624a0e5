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

package util

// Bitmap is a validity mask. A nil Bits means every row is valid.
type Bitmap struct {
	Bits []uint8
}

func (bm *Bitmap) Data() []uint8 {
	return bm.Bits
}

func (bm *Bitmap) Bytes(count int) int {
	return EntryCount(count)
}

func (bm *Bitmap) Init(count int) {
	cnt := EntryCount(count)
	bm.Bits = make([]uint8, cnt)
	for i := range bm.Bits {
		bm.Bits[i] = 0xFF
	}
}

func (bm *Bitmap) Invalid() bool {
	return len(bm.Bits) == 0
}

func GetEntryIndex(idx uint64) (uint64, uint64) {
	return idx / 8, idx % 8
}

func EntryIsSet(e uint8, pos uint64) bool {
	return e&(1<<pos) != 0
}

func (bm *Bitmap) RowIsValid(idx uint64) bool {
	if bm.Invalid() {
		return true
	}
	eIdx, pos := GetEntryIndex(idx)
	if eIdx >= uint64(len(bm.Bits)) {
		return true
	}
	return EntryIsSet(bm.Bits[eIdx], pos)
}

func (bm *Bitmap) Set(ridx uint64, valid bool) {
	if valid {
		bm.SetValid(ridx)
	} else {
		bm.SetInvalid(ridx)
	}
}

func (bm *Bitmap) SetValid(ridx uint64) {
	if bm.Invalid() {
		return
	}
	bm.ensure(ridx)
	eIdx, pos := GetEntryIndex(ridx)
	bm.Bits[eIdx] |= 1 << pos
}

func (bm *Bitmap) SetInvalid(ridx uint64) {
	if bm.Invalid() {
		bm.Init(max(DefaultVectorSize, int(ridx)+1))
	}
	bm.ensure(ridx)
	eIdx, pos := GetEntryIndex(ridx)
	bm.Bits[eIdx] &= ^(1 << pos)
}

func (bm *Bitmap) ensure(ridx uint64) {
	need := EntryCount(int(ridx) + 1)
	if need <= len(bm.Bits) {
		return
	}
	newData := make([]uint8, need)
	copy(newData, bm.Bits)
	for i := len(bm.Bits); i < need; i++ {
		newData[i] = 0xFF
	}
	bm.Bits = newData
}

func (bm *Bitmap) Reset() {
	bm.Bits = nil
}

func (bm *Bitmap) AllValid() bool {
	return bm.Invalid()
}

// CountValid counts the valid rows in [0, count).
func (bm *Bitmap) CountValid(count int) int {
	if bm.Invalid() {
		return count
	}
	cnt := 0
	for i := 0; i < count; i++ {
		if bm.RowIsValid(uint64(i)) {
			cnt++
		}
	}
	return cnt
}

func EntryCount(cnt int) int {
	return (cnt + 7) / 8
}
