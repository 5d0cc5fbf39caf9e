//
// Copyright 2023 The dpmech Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package rand

import (
	"bufio"
	"bytes"
	cryptorand "crypto/rand"
	"testing"
)

func TestBooleanBufIsShifting(t *testing.T) {
	defer func() { randBuf = bufio.NewReaderSize(cryptorand.Reader, 65536) }()
	randBuf = bytes.NewReader([]byte{
		0b00100100,
		0b10010000,
	})
	for pos, want := range []bool{
		// first byte
		false,
		false,
		true,
		false,
		false,
		true,
		false,
		false,
		// second byte
		false,
		false,
		false,
		false,
		true,
		false,
		false,
		true,
	} {
		if got := Boolean(); got != want {
			t.Errorf("Boolean: got %v, want %v in %v-th iteration", got, want, pos)
		}
	}
}

func TestI63nStaysInRange(t *testing.T) {
	for _, n := range []int64{1, 2, 3, 10, 1 << 40} {
		for i := 0; i < 100; i++ {
			got := I63n(n)
			if got < 0 || got >= n {
				t.Fatalf("I63n(%d) = %d, want value in [0, %d)", n, got, n)
			}
		}
	}
}

func TestUniformStaysInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		got := Uniform()
		if got <= 0 || got > 1 {
			t.Fatalf("Uniform() = %f, want value in (0, 1]", got)
		}
	}
}

func TestGeometricIsAtLeastOne(t *testing.T) {
	for i := 0; i < 1000; i++ {
		if got := Geometric(); got < 1 {
			t.Fatalf("Geometric() = %f, want value >= 1", got)
		}
	}
}
