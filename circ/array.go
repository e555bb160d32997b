/*
 *
 * Copyright 2025 cpp-ipc authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package circ

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/19317362/cpp-ipc/shm"
)

// Slot is a handle on one ring slot returned by Acquire or Take. Acquire's
// slot must be paired with Commit; Take's slot must be paired with Put.
type Slot struct {
	idx    uint32
	cursor uint32
	data   unsafe.Pointer
	size   uint32
}

// Bytes exposes the slot's fixed-size payload area for in-place reads or
// writes. The returned slice aliases shared memory and is only valid
// until the matching Commit/Put call.
func (s *Slot) Bytes() []byte {
	return unsafe.Slice((*byte)(s.data), s.size)
}

// Cursor returns the write_cursor value this slot was acquired/taken at.
func (s *Slot) Cursor() uint32 { return s.cursor }

// ElemArray is the single-producer circular element array: one producer
// calling Acquire/Commit, any number of consumers calling Take/Put.
type ElemArray struct {
	region   *shm.Region
	n        uint32
	mask     uint32
	dataSize uint32
	hdr      arrayHeaderView
	base     unsafe.Pointer
	stride   uintptr

	spin int
}

// NewElemArray maps (creating if necessary) the named region for a ring of
// n slots, each holding dataSize payload bytes. n must be a power of two.
func NewElemArray(name string, n uint32, dataSize uint32) (*ElemArray, error) {
	size, err := regionSize(n, dataSize, spSlotHeaderSize)
	if err != nil {
		return nil, err
	}
	region, err := shm.Acquire(name, size)
	if err != nil {
		return nil, fmt.Errorf("circ: acquire region %q: %w", name, err)
	}
	mem := region.Bytes()
	base := unsafe.Pointer(&mem[0])
	return &ElemArray{
		region:   region,
		n:        n,
		mask:     n - 1,
		dataSize: dataSize,
		hdr:      arrayHeaderView{base: base},
		base:     base,
		stride:   slotStride(spSlotHeaderSize, dataSize),
	}, nil
}

// Close releases the underlying shared-memory region. Callers should
// Disconnect before Close if they previously Connect-ed.
func (a *ElemArray) Close() error {
	return a.region.Release()
}

func (a *ElemArray) slotReadCounter(idx uint32) *uint32 {
	base := slotBase(a.base, idx, a.stride)
	return (*uint32)(base)
}

func (a *ElemArray) slotData(idx uint32) unsafe.Pointer {
	base := slotBase(a.base, idx, a.stride)
	return unsafe.Pointer(uintptr(base) + spSlotHeaderSize)
}

// Connect atomically increments conn_count and returns its prior value.
func (a *ElemArray) Connect() uint32 {
	return atomic.AddUint32(a.hdr.connCountPtr(), 1) - 1
}

// Disconnect atomically decrements conn_count and returns its prior value.
func (a *ElemArray) Disconnect() uint32 {
	return atomic.AddUint32(a.hdr.connCountPtr(), ^uint32(0)) + 1
}

// ConnCount returns the current connection count.
func (a *ElemArray) ConnCount() uint32 {
	return atomic.LoadUint32(a.hdr.connCountPtr())
}

// Cursor returns the current write_cursor value.
func (a *ElemArray) Cursor() uint32 {
	return atomic.LoadUint32(a.hdr.writeCursorPtr())
}

// Acquire blocks until the slot addressed by the current write_cursor is
// free (read_counter == 0), stamps it with the current conn_count, and
// returns a handle on its data area. Never fails.
func (a *ElemArray) Acquire() *Slot {
	cursor := atomic.LoadUint32(a.hdr.writeCursorPtr())
	idx := cursor & a.mask
	rc := a.slotReadCounter(idx)

	for {
		cc := a.ConnCount()
		if atomic.CompareAndSwapUint32(rc, 0, cc) {
			break
		}
		a.yield()
	}

	return &Slot{idx: idx, cursor: cursor, data: a.slotData(idx), size: a.dataSize}
}

// Commit publishes an acquired slot by incrementing write_cursor.
func (a *ElemArray) Commit(s *Slot) {
	atomic.AddUint32(a.hdr.writeCursorPtr(), 1)
}

// Take returns a handle on the slot addressed by cursor, for a consumer
// that has already observed write_cursor > cursor.
func (a *ElemArray) Take(cursor uint32) *Slot {
	idx := cursor & a.mask
	return &Slot{idx: idx, cursor: cursor, data: a.slotData(idx), size: a.dataSize}
}

// Put releases a taken slot by decrementing its read_counter.
func (a *ElemArray) Put(s *Slot) {
	rc := a.slotReadCounter(s.idx)
	atomic.AddUint32(rc, ^uint32(0))
}

func (a *ElemArray) yield() {
	a.spin++
	if a.spin%goschedEvery == 0 {
		runtime.Gosched()
	}
}

// State returns a diagnostic snapshot; never used on the fast path.
func (a *ElemArray) State() ArrayState {
	pending := uint32(0)
	for i := uint32(0); i < a.n; i++ {
		if atomic.LoadUint32(a.slotReadCounter(i)) != 0 {
			pending++
		}
	}
	return ArrayState{
		ConnCount:    a.ConnCount(),
		Cursor:       a.Cursor(),
		SlotCount:    a.n,
		SlotsPending: pending,
	}
}
