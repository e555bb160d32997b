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

// Package queue implements the fragmenting message queue layer atop a
// circular element array: it splits arbitrary-length payloads into
// fixed-size fragments tagged with a monotonic message id and a
// descending remaining-byte count, and reassembles them per receiver.
package queue

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/19317362/cpp-ipc/shm"
)

// globalCounterName is the fixed shared-memory name for the process-wide
// (in fact host-wide, via shared memory) monotonic message-id counter.
const globalCounterName = "GLOBAL_ACC_STORAGE__"

var (
	counterOnce   sync.Once
	counterRegion *shm.Region
	counterPtr    *uint64
	counterErr    error
)

func globalCounter() (*uint64, error) {
	counterOnce.Do(func() {
		counterRegion, counterErr = shm.Acquire(globalCounterName, 8)
		if counterErr != nil {
			return
		}
		mem := counterRegion.Bytes()
		counterPtr = (*uint64)(unsafe.Pointer(&mem[0]))
	})
	return counterPtr, counterErr
}

// nextMsgID returns the next monotonic message id, never returning 0 (0
// is reserved as "no message"). Overflow of the 64-bit counter wraps and
// is not reachable in practice.
func nextMsgID() (uint64, error) {
	ptr, err := globalCounter()
	if err != nil {
		return 0, err
	}
	for {
		id := atomic.AddUint64(ptr, 1)
		if id != 0 {
			return id, nil
		}
	}
}
