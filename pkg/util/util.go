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

import (
	"fmt"
	"math"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

const (
	DefaultVectorSize = 2048
)

// AssertFunc panics with an assertion failure if b is false.
func AssertFunc(b bool) {
	if !b {
		panic(errors.AssertionFailedf("assertion failed"))
	}
}

// Assertf is AssertFunc with a diagnostic message.
func Assertf(b bool, format string, args ...any) {
	if !b {
		panic(errors.AssertionFailedWithDepthf(1, format, args...))
	}
}

func FileIsValid(path string) bool {
	stat, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !stat.IsDir()
}

// ConvertPanicError turns a recovered panic value into an error.
// Errors raised by Assertf keep their assertion marker.
func ConvertPanicError(v interface{}) error {
	if err, ok := v.(error); ok {
		return errors.WithDetailf(err, "stack: %+v", Callers(3))
	}
	return fmt.Errorf("panic %v: %+v", v, Callers(3))
}

type Stack []uintptr

// Callers makes the depth customizable.
func Callers(depth int) *Stack {
	const numFrames = 32
	var pcs [numFrames]uintptr
	n := runtime.Callers(2+depth, pcs[:])
	var st Stack = pcs[0:n]
	return &st
}

func (s *Stack) Format(st fmt.State, verb rune) {
	frames := runtime.CallersFrames(*s)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(st, "\n%s\n\t%s:%d", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
}

// CompareFloat orders NaN after every other value.
func CompareFloat[T ~float32 | ~float64](lhs, rhs T) int {
	lIsNan := math.IsNaN(float64(lhs))
	rIsNan := math.IsNaN(float64(rhs))
	switch {
	case lIsNan && rIsNan:
		return 0
	case lIsNan:
		return 1
	case rIsNan:
		return -1
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	}
	return 0
}

func SuccinctBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}
