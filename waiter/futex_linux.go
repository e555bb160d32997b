//go:build linux && (amd64 || arm64)

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

package waiter

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex ops, so that processes mapping the same
// shared-memory word can wake each other.
const (
	futexWaitShared = 0 // FUTEX_WAIT
	futexWakeShared = 1 // FUTEX_WAKE
)

// ErrTimeout is returned by the internal timed wait when the deadline
// elapses before a wake; Wait translates it to context.DeadlineExceeded.
var ErrTimeout = errors.New("waiter: wait timed out")

func wordPtr(mem []byte) *uint32 {
	return (*uint32)(unsafe.Pointer(&mem[0]))
}

func loadWord(word *uint32) uint32 {
	return atomic.LoadUint32(word)
}

func addWord(word *uint32, delta uint32) {
	atomic.AddUint32(word, delta)
}

// futexWait blocks until *addr != val, a wake arrives, or the call is
// interrupted. Callers must always re-check their real condition after
// this returns, since wakes may be spurious.
func futexWait(addr *uint32, val uint32) error {
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitShared),
		uintptr(val),
		0, 0, 0,
	)
	if errno != 0 {
		switch errno {
		case unix.EAGAIN, unix.EINTR:
			return nil
		default:
			return fmt.Errorf("waiter: futex wait: %w", errno)
		}
	}
	return nil
}

func futexWaitTimeout(addr *uint32, val uint32, timeoutNs int64) error {
	if timeoutNs <= 0 {
		return futexWait(addr, val)
	}
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	ts := unix.Timespec{
		Sec:  timeoutNs / 1e9,
		Nsec: timeoutNs % 1e9,
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWaitShared),
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0, 0,
	)
	if errno != 0 {
		switch errno {
		case unix.EAGAIN, unix.EINTR:
			return nil
		case unix.ETIMEDOUT:
			return ErrTimeout
		default:
			return fmt.Errorf("waiter: futex wait: %w", errno)
		}
	}
	return nil
}

// futexWake wakes up to n threads blocked on addr.
func futexWake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWakeShared),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, fmt.Errorf("waiter: futex wake: %w", errno)
	}
	return int(r1), nil
}
