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

package dma

// BindHandle is a pre-allocated handle for transient bindings over memory
// the upper stack owns. A handle carries at most one binding at a time;
// Unbind must be called before the next Bind.
type BindHandle struct {
	attr    Attr
	eng     backend
	fault   *faultFlag
	cookies []Cookie
	bound   []byte
}

// Bind establishes a device-visible mapping over mem without copying and
// returns the cookie list describing it. The number of cookies depends on
// how the region crosses the engine's segment boundaries; a region needing
// more cookies than the handle's attributes allow fails with
// ErrTooManyCookies and leaves the handle unbound.
func (h *BindHandle) Bind(mem []byte) ([]Cookie, error) {
	cookies, err := h.eng.bind(h.attr, mem)
	if err != nil {
		return nil, err
	}
	h.cookies = cookies
	h.bound = mem
	return cookies, nil
}

// Unbind tears the mapping down. Unbinding an unbound handle is a no-op.
func (h *BindHandle) Unbind() {
	if h.bound == nil {
		return
	}
	h.eng.unbind(h.cookies)
	h.cookies = nil
	h.bound = nil
}

// CheckHandle reports whether the handle has observed a fault.
func (h *BindHandle) CheckHandle() error {
	if h.fault != nil && h.fault.faulted() {
		return ErrHandleFault
	}
	return nil
}

// Free releases the handle. The handle must be unbound.
func (h *BindHandle) Free() {
	h.Unbind()
	h.eng = nil
}
