// Copyright 2026 NFV Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package i40e

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescAdvance(t *testing.T) {
	assert.Equal(t, 1, nextDesc(0, 1, 64))
	assert.Equal(t, 0, nextDesc(63, 1, 64))
	assert.Equal(t, 3, nextDesc(60, 7, 64))
	assert.Equal(t, 63, prevDesc(0, 1, 64))
	assert.Equal(t, 60, prevDesc(3, 7, 64))
}

// next and prev are inverses for every base and stride within the ring.
func TestDescAdvanceRoundTrip(t *testing.T) {
	const n = 64
	for i := 0; i < n; i++ {
		for k := 1; k < n; k++ {
			assert.Equal(t, i, nextDesc(prevDesc(i, k, n), k, n))
			assert.Equal(t, i, prevDesc(nextDesc(i, k, n), k, n))
		}
	}
}

func TestDescAdvanceAsserts(t *testing.T) {
	assert.Panics(t, func() { nextDesc(64, 1, 64) })
	assert.Panics(t, func() { nextDesc(0, 0, 64) })
	assert.Panics(t, func() { prevDesc(-1, 1, 64) })
}
