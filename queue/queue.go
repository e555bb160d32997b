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

package queue

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/19317362/cpp-ipc/circ"
	"github.com/19317362/cpp-ipc/waiter"
)

// idlePoll bounds how long Recv parks on a waiter before re-checking the
// cursor itself; the waiter is never the sole source of truth, so a missed
// or spurious wake still self-heals within this interval.
const idlePoll = 20 * time.Millisecond

// Ring is the subset of circ.ElemArray / circ.MPElemArray the queue layer
// needs. Both satisfy it without any adapter.
type Ring interface {
	Connect() uint32
	Disconnect() uint32
	ConnCount() uint32
	Cursor() uint32
	Acquire() *circ.Slot
	Commit(*circ.Slot)
	Take(uint32) *circ.Slot
	Put(*circ.Slot)
	Close() error
	State() circ.ArrayState
}

// cacheEntry is the in-progress reassembly state for one msg_id: the bytes
// collected so far.
type cacheEntry struct {
	buf []byte
}

// Queue hides a CEA's fixed slot size behind arbitrary-length Send/Recv.
// One Queue is one endpoint: its reassembly cache holds only the state of
// fragments this endpoint has itself popped off the ring, so two Queues
// sharing a Ring never observe each other's partial messages.
type Queue struct {
	ring       Ring
	channelTag uint64
	dataLength uint32

	connectOnce sync.Once
	connected   bool
	readCursor  uint32

	mu    sync.Mutex
	cache map[uint64]*cacheEntry

	waiter *waiter.Waiter
}

// AttachWaiter wires a cross-process waiter so that Commit-ers wake idle
// Recv-ers instead of relying purely on spin-yield. Optional: a Queue with
// no attached waiter behaves exactly as before.
func (q *Queue) AttachWaiter(w *waiter.Waiter) {
	q.waiter = w
}

// Connected reports whether this endpoint has performed its lazy
// consumer-side connect (i.e. Recv or ConnectAsReceiver has been called at
// least once).
func (q *Queue) Connected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.connected
}

// Disconnect decrements the ring's connection count, but only if this
// endpoint actually connected (via a prior Recv or ConnectAsReceiver); an
// endpoint that only ever sent never bumped conn_count, so it has nothing
// to undo.
func (q *Queue) Disconnect() {
	q.mu.Lock()
	connected := q.connected
	q.mu.Unlock()
	if connected {
		q.ring.Disconnect()
	}
}

// Ring returns the underlying ring, for callers (the channel façade) that
// need to Close it directly.
func (q *Queue) Ring() Ring {
	return q.ring
}

// New wraps ring as a fragmenting queue endpoint identified by
// channelTag. dataLength is the per-fragment payload capacity; ring's
// slot size must equal DataSize(dataLength).
func New(ring Ring, channelTag uint64, dataLength uint32) *Queue {
	return &Queue{
		ring:       ring,
		channelTag: channelTag,
		dataLength: dataLength,
		cache:      make(map[uint64]*cacheEntry),
	}
}

// Send splits data into DataLength-sized fragments tagged with a fresh
// msg_id and publishes them in order. Returns false for nil/empty data
// without touching the ring.
func (q *Queue) Send(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	msgID, err := nextMsgID()
	if err != nil {
		return false
	}

	dl := int(q.dataLength)
	for offset := 0; ; offset += dl {
		remain := int32(len(data) - offset - dl)
		var chunk []byte
		if remain > 0 {
			chunk = data[offset : offset+dl]
		} else {
			chunk = data[offset:]
		}

		slot := q.ring.Acquire()
		encodeFragment(slot.Bytes(), q.channelTag, msgID, remain, chunk)
		q.ring.Commit(slot)
		if q.waiter != nil {
			q.waiter.Broadcast()
		}

		if remain <= 0 {
			break
		}
	}
	return true
}

// ensureConnected performs the consumer-side connect exactly once, on
// first Recv, snapshotting the cursor as this receiver's start position.
// Publications before this point are never observed (late-join exclusion).
func (q *Queue) ensureConnected() {
	q.connectOnce.Do(func() {
		q.ring.Connect()
		q.readCursor = q.ring.Cursor()
		q.mu.Lock()
		q.connected = true
		q.mu.Unlock()
	})
}

// ConnectAsReceiver performs this endpoint's lazy consumer connect
// immediately rather than waiting for the first Recv call. Idempotent.
// Most callers never need this; it exists for callers that must be
// counted in conn_count, and have their start cursor snapshotted, before
// any message they care about is published.
func (q *Queue) ConnectAsReceiver() {
	q.ensureConnected()
}

// Recv pops and reassembles the next message not already seen by this
// endpoint and not published by this endpoint itself (self-echo
// suppression by channel_tag). Blocks, parking on the attached waiter (or
// yielding, if none is attached), until a message completes or ctx is
// done.
func (q *Queue) Recv(ctx context.Context) ([]byte, error) {
	q.ensureConnected()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		cur := q.ring.Cursor()
		if q.readCursor == cur {
			q.idleWait(ctx)
			continue
		}

		slot := q.ring.Take(q.readCursor)
		tag, msgID, remain, payload := decodeFragment(slot.Bytes(), q.dataLength)
		q.ring.Put(slot)
		q.readCursor++

		if tag == q.channelTag {
			continue
		}

		if msg, done := q.absorb(msgID, remain, payload); done {
			return msg, nil
		}
	}
}

// idleWait parks until woken by a producer's Broadcast, ctx is done, or
// idlePoll elapses, whichever comes first. The cursor is always re-checked
// by the caller afterward, so a spurious or missed wake just costs one
// extra lap rather than correctness.
func (q *Queue) idleWait(ctx context.Context) {
	if q.waiter == nil {
		runtime.Gosched()
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, idlePoll)
	defer cancel()
	q.waiter.Wait(waitCtx) //nolint:errcheck // timeout/cancel are both just "re-check and loop"
}

// absorb feeds one fragment into the reassembly cache for msgID. done is
// true once remain <= 0 closed out the message, and msg holds the
// complete reassembled bytes.
func (q *Queue) absorb(msgID uint64, remain int32, payload []byte) (msg []byte, done bool) {
	remainBytes := int(q.dataLength) + int(remain)

	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.cache[msgID]
	if !ok {
		if remain <= 0 {
			buf := make([]byte, remainBytes)
			copy(buf, payload[:remainBytes])
			return buf, true
		}
		buf := make([]byte, q.dataLength)
		copy(buf, payload[:q.dataLength])
		q.cache[msgID] = &cacheEntry{buf: buf}
		return nil, false
	}

	if remain <= 0 {
		entry.buf = append(entry.buf, payload[:remainBytes]...)
		delete(q.cache, msgID)
		return entry.buf, true
	}

	entry.buf = append(entry.buf, payload[:q.dataLength]...)
	return nil, false
}

// ClearCache drops any in-progress reassembly state for this endpoint.
// Used by clear_recv-style test teardown.
func (q *Queue) ClearCache() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cache = make(map[uint64]*cacheEntry)
}
