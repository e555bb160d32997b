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
	"context"
	"testing"
	"time"
)

func uniqueID(t *testing.T) uint32 {
	return uint32(time.Now().UnixNano() & 0x7fffffff)
}

func TestOpenCloseRefcount(t *testing.T) {
	id := uniqueID(t)
	w1, err := Open(id)
	if err != nil {
		t.Fatalf("Open 1: %v", err)
	}
	w2, err := Open(id)
	if err != nil {
		t.Fatalf("Open 2: %v", err)
	}
	if w1 != w2 {
		t.Fatal("two Opens of the same id must return the same Waiter")
	}
	if err := w1.Close(); err != nil {
		t.Fatalf("Close 1: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("Close 2: %v", err)
	}
}

func TestNotifyWakesWaiter(t *testing.T) {
	id := uniqueID(t)
	w, err := Open(id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	woke := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		woke <- w.Wait(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	w.Notify()

	select {
	case err := <-woke:
		if err != nil {
			t.Fatalf("Wait returned %v after Notify", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait never returned after Notify")
	}
}

func TestWaitRespectsContextDeadline(t *testing.T) {
	id := uniqueID(t)
	w, err := Open(id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = w.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("Wait returned %v, want context.DeadlineExceeded", err)
	}
}

func TestBroadcastWakesAllWaiters(t *testing.T) {
	id := uniqueID(t)
	w, err := Open(id)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer w.Close()

	const n = 4
	woke := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			woke <- w.Wait(ctx)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	w.Broadcast()

	for i := 0; i < n; i++ {
		select {
		case err := <-woke:
			if err != nil {
				t.Fatalf("waiter %d: Wait returned %v", i, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("waiter %d never woke after Broadcast", i)
		}
	}
}
