//go:build !linux || !(amd64 || arm64)

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
	"sync/atomic"
	"unsafe"
)

// ErrFutexNotSupported indicates the current platform has no futex-based
// wait primitive; Wait falls back to a short sleep-free no-op so callers
// still correctly re-poll their real condition.
var ErrFutexNotSupported = errors.New("waiter: futex not supported on this platform")

// ErrTimeout mirrors the Linux build's timeout sentinel.
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

func futexWait(addr *uint32, val uint32) error {
	return nil
}

func futexWaitTimeout(addr *uint32, val uint32, timeoutNs int64) error {
	return nil
}

func futexWake(addr *uint32, n int) (int, error) {
	return 0, nil
}
