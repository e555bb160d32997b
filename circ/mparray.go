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

// MPElemArray is the multi-producer circular element array. Producers
// publish through a two-phase commit: a reservation cursor (fetch-add,
// serialized per-slot by acq_flag) separates "claimed for writing" from a
// commit cursor that only ever advances over a contiguous run of slots
// that have actually finished writing. Consumers only ever observe the
// commit cursor.
type MPElemArray struct {
	region   *shm.Region
	n        uint32
	mask     uint32
	dataSize uint32
	hdr      mpArrayHeaderView
	base     unsafe.Pointer
	stride   uintptr

	spin int
}

// NewMPElemArray maps (creating if necessary) the named region for an
// n-slot multi-producer ring, each slot holding dataSize payload bytes.
func NewMPElemArray(name string, n uint32, dataSize uint32) (*MPElemArray, error) {
	size, err := mpRegionSize(n, dataSize)
	if err != nil {
		return nil, err
	}
	region, err := shm.Acquire(name, size)
	if err != nil {
		return nil, fmt.Errorf("circ: acquire region %q: %w", name, err)
	}
	mem := region.Bytes()
	base := unsafe.Pointer(&mem[0])
	return &MPElemArray{
		region:   region,
		n:        n,
		mask:     n - 1,
		dataSize: dataSize,
		hdr:      mpArrayHeaderView{base: base},
		base:     base,
		stride:   slotStride(mpSlotHeaderSize, dataSize),
	}, nil
}

// Close releases the underlying shared-memory region.
func (a *MPElemArray) Close() error {
	return a.region.Release()
}

func (a *MPElemArray) slotReadCounter(idx uint32) *uint32 {
	return (*uint32)(mpSlotBase(a.base, idx, a.stride))
}

func (a *MPElemArray) slotWriteFlag(idx uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(mpSlotBase(a.base, idx, a.stride)) + 4))
}

func (a *MPElemArray) slotAcqFlag(idx uint32) *uint32 {
	return (*uint32)(unsafe.Pointer(uintptr(mpSlotBase(a.base, idx, a.stride)) + 8))
}

func (a *MPElemArray) slotData(idx uint32) unsafe.Pointer {
	return unsafe.Pointer(uintptr(mpSlotBase(a.base, idx, a.stride)) + mpSlotHeaderSize)
}

// Connect atomically increments conn_count and returns its prior value.
func (a *MPElemArray) Connect() uint32 {
	return atomic.AddUint32(a.hdr.connCountPtr(), 1) - 1
}

// Disconnect atomically decrements conn_count and returns its prior value.
func (a *MPElemArray) Disconnect() uint32 {
	return atomic.AddUint32(a.hdr.connCountPtr(), ^uint32(0)) + 1
}

// ConnCount returns the current connection count.
func (a *MPElemArray) ConnCount() uint32 {
	return atomic.LoadUint32(a.hdr.connCountPtr())
}

// Cursor returns the commit cursor: the contiguous prefix of reserved
// slots that have finished publishing. This is what consumers poll.
func (a *MPElemArray) Cursor() uint32 {
	return atomic.LoadUint32(a.hdr.commitCursorPtr())
}

// Acquire reserves the next slot index, excludes other producers from it
// via acq_flag, then gates on read_counter == 0 the same way the
// single-producer variant does. Never fails.
func (a *MPElemArray) Acquire() *Slot {
	var idx uint32
	for {
		cursor := atomic.AddUint32(a.hdr.reservationCursorPtr(), 1) - 1
		idx = cursor & a.mask
		if atomic.CompareAndSwapUint32(a.slotAcqFlag(idx), 0, 1) {
			cc := a.ConnCount()
			for !atomic.CompareAndSwapUint32(a.slotReadCounter(idx), 0, cc) {
				a.yield()
			}
			return &Slot{idx: idx, cursor: cursor, data: a.slotData(idx), size: a.dataSize}
		}
		// Another producer still owns this slot from a prior lap; this
		// reservation is abandoned and a fresh one is taken above.
		a.yield()
	}
}

func (a *MPElemArray) yield() {
	a.spin++
	if a.spin%goschedEvery == 0 {
		runtime.Gosched()
	}
}

// Commit publishes an acquired slot. If this producer's slot is the one
// the commit cursor is currently waiting on, it advances the cursor past
// it and then walks forward over any neighbors that already finished out
// of order. Otherwise it marks its slot done, then re-checks the cursor
// with a no-op CAS: if the cursor caught up to this slot while the flag
// was being stored, this producer retries and performs the advance
// itself instead of leaving it parked with no one left to drive it
// forward. Only a CAS failure on the cursor's own turn, meaning some
// other producer already advanced past this slot, lets it return early.
func (a *MPElemArray) Commit(s *Slot) {
	idx := s.idx
	atomic.StoreUint32(a.slotAcqFlag(idx), 0)

	for {
		cr := atomic.LoadUint32(a.hdr.commitCursorPtr())
		if cr&a.mask != idx {
			atomic.StoreUint32(a.slotWriteFlag(idx), 1)
			if atomic.CompareAndSwapUint32(a.hdr.commitCursorPtr(), cr, cr) {
				return
			}
			a.yield()
			continue
		}
		atomic.StoreUint32(a.slotWriteFlag(idx), 0)
		if atomic.CompareAndSwapUint32(a.hdr.commitCursorPtr(), cr, cr+1) {
			a.advanceCommitCursor(cr + 1)
		}
		return
	}
}

func (a *MPElemArray) advanceCommitCursor(next uint32) {
	for {
		idx := next & a.mask
		if !atomic.CompareAndSwapUint32(a.slotWriteFlag(idx), 1, 0) {
			return
		}
		if !atomic.CompareAndSwapUint32(a.hdr.commitCursorPtr(), next, next+1) {
			return
		}
		next++
	}
}

// Take returns a handle on the slot addressed by cursor, for a consumer
// that has already observed Cursor() > cursor.
func (a *MPElemArray) Take(cursor uint32) *Slot {
	idx := cursor & a.mask
	return &Slot{idx: idx, cursor: cursor, data: a.slotData(idx), size: a.dataSize}
}

// Put releases a taken slot by decrementing its read_counter.
func (a *MPElemArray) Put(s *Slot) {
	atomic.AddUint32(a.slotReadCounter(s.idx), ^uint32(0))
}

// State returns a diagnostic snapshot; never used on the fast path.
func (a *MPElemArray) State() ArrayState {
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
