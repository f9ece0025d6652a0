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

// nextDesc advances a descriptor index by count, modulo the ring size.
func nextDesc(base, count, size int) int {
	assertDescArgs(base, count, size)
	out := base + count
	if out >= size {
		out -= size
	}
	return out
}

// prevDesc moves a descriptor index back by count, modulo the ring size.
func prevDesc(base, count, size int) int {
	assertDescArgs(base, count, size)
	out := base - count
	if out < 0 {
		out += size
	}
	return out
}

func assertDescArgs(base, count, size int) {
	if base < 0 || base >= size || count <= 0 || count > size {
		panic("descriptor index out of range")
	}
}
