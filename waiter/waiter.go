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

// Package waiter is a cross-process counting wait primitive used only to
// avoid busy-spinning on an empty ring. It is never on the correctness
// path: every blocking caller re-checks its real condition (a cursor or a
// counter in shared memory) after Wait returns, spurious or not.
package waiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/19317362/cpp-ipc/ipclog"
	"github.com/19317362/cpp-ipc/shm"
)

// Waiter is a named, shared-memory-backed futex word with a process-wide
// reference count, analogous to a counting semaphore opened by name.
type Waiter struct {
	id     uint32
	region *shm.Region
	word   *uint32
}

var (
	registryMu sync.Mutex
	registry   = make(map[uint32]*refcountedWaiter)
)

type refcountedWaiter struct {
	refs int32
	w    *Waiter
}

// regionName returns the shared-memory name backing the futex word for id,
// matching the naming convention for waiter event regions.
func regionName(id uint32) string {
	return fmt.Sprintf("__IPC_WAIT__%d", id)
}

// Open returns the process-wide Waiter for id, creating its backing region
// on first open and incrementing a reference count on subsequent opens.
func Open(id uint32) (*Waiter, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if rc, ok := registry[id]; ok {
		rc.refs++
		return rc.w, nil
	}

	region, err := shm.Acquire(regionName(id), 4)
	if err != nil {
		return nil, fmt.Errorf("waiter: open %d: %w", id, err)
	}

	w := &Waiter{
		id:     id,
		region: region,
		word:   wordPtr(region.Bytes()),
	}
	registry[id] = &refcountedWaiter{refs: 1, w: w}
	return w, nil
}

// Close releases this Waiter's reference; the backing region is destroyed
// when the last reference is closed.
func (w *Waiter) Close() error {
	registryMu.Lock()
	rc, ok := registry[w.id]
	if !ok {
		registryMu.Unlock()
		return nil
	}
	rc.refs--
	last := rc.refs <= 0
	if last {
		delete(registry, w.id)
	}
	registryMu.Unlock()

	if !last {
		return nil
	}
	return w.region.Release()
}

// Wait blocks until Notify/Broadcast is called on this Waiter, the
// context's deadline passes, or a spurious wake occurs. Only the deadline
// is watched: cancelling the context does not end a Wait already blocked,
// and a context without a deadline waits for a wake alone. Callers must
// always re-check their real condition after Wait returns nil.
func (w *Waiter) Wait(ctx context.Context) error {
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return futexWait(w.word, loadWord(w.word))
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return context.DeadlineExceeded
	}
	err := futexWaitTimeout(w.word, loadWord(w.word), remaining.Nanoseconds())
	if err == ErrTimeout {
		return context.DeadlineExceeded
	}
	return err
}

// Notify wakes one thread blocked in Wait on this Waiter, if any. A wake
// failure is logged and otherwise ignored.
func (w *Waiter) Notify() {
	addWord(w.word, 1)
	if _, err := futexWake(w.word, 1); err != nil {
		ipclog.L().WithError(err).WithField("wait_id", w.id).Warn("waiter: notify failed")
	}
}

// Broadcast wakes every thread blocked in Wait on this Waiter. A wake
// failure is logged and otherwise ignored.
func (w *Waiter) Broadcast() {
	addWord(w.word, 1)
	if _, err := futexWake(w.word, 1<<30); err != nil {
		ipclog.L().WithError(err).WithField("wait_id", w.id).Warn("waiter: broadcast failed")
	}
}
