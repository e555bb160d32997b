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
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/19317362/cpp-ipc/circ"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("queue-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func newSPRing(t *testing.T, dataLength uint32) Ring {
	t.Helper()
	r, err := circ.NewElemArray(uniqueName(t), 256, DataSize(dataLength))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func newMPRing(t *testing.T, dataLength uint32) Ring {
	t.Helper()
	r, err := circ.NewMPElemArray(uniqueName(t), 256, DataSize(dataLength))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestQueueSendEmptyReturnsFalse(t *testing.T) {
	ring := newSPRing(t, DefaultDataLength)
	q := New(ring, 1, DefaultDataLength)

	require.False(t, q.Send(nil))
	require.False(t, q.Send([]byte{}))
	require.EqualValues(t, 0, ring.Cursor(), "cursor must not move on a rejected send")
}

func TestQueueFragmentRoundTrip(t *testing.T) {
	ring := newSPRing(t, DefaultDataLength)
	sender := New(ring, 1, DefaultDataLength)
	receiver := New(ring, 2, DefaultDataLength)
	receiver.ConnectAsReceiver()

	msg := append([]byte("hello, world!!!"), []byte(strings.Repeat("x", 50))...)
	require.Len(t, msg, 65)

	require.True(t, sender.Send(msg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := receiver.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestQueueExactFragmentationRemainSequence(t *testing.T) {
	// A 65-byte message over a 16-byte data_length splits into five
	// fragments; remain should count down by 16 each time and finish
	// negative on the last, short fragment.
	ring := newSPRing(t, 16)
	sender := New(ring, 1, 16)

	msg := append([]byte("hello, world!!!"), []byte(strings.Repeat("x", 50))...)
	require.Len(t, msg, 65)
	require.True(t, sender.Send(msg))

	want := []int32{49, 33, 17, 1, -15}
	for i, w := range want {
		slot := ring.Take(uint32(i))
		_, _, remain, _ := decodeFragment(slot.Bytes(), 16)
		ring.Put(slot)
		require.Equal(t, w, remain, "fragment %d remain", i)
	}
}

func TestQueueSelfEchoSuppression(t *testing.T) {
	ring := newSPRing(t, DefaultDataLength)
	sender := New(ring, 42, DefaultDataLength)
	sender.ConnectAsReceiver() // connect before publishing so its own fragments are in range

	require.True(t, sender.Send([]byte("echo me not")))

	// sender's own Recv must never observe its own publication: feed it
	// one more message from someone else and confirm that's what it gets.
	other := New(ring, 43, DefaultDataLength)
	require.True(t, other.Send([]byte("from elsewhere")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := sender.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("from elsewhere"), got)
}

func TestQueueInterleavedProducers(t *testing.T) {
	ring := newMPRing(t, DefaultDataLength)
	receiver := New(ring, 999, DefaultDataLength)
	receiver.ConnectAsReceiver()

	b1 := []byte(strings.Repeat("A", 130))
	b2 := []byte(strings.Repeat("B", 90))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s := New(ring, 1, DefaultDataLength)
		require.True(t, s.Send(b1))
	}()
	go func() {
		defer wg.Done()
		s := New(ring, 2, DefaultDataLength)
		require.True(t, s.Send(b2))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := map[string]bool{}
	for len(got) < 2 {
		msg, err := receiver.Recv(ctx)
		require.NoError(t, err)
		got[string(msg)] = true
	}
	require.True(t, got[string(b1)])
	require.True(t, got[string(b2)])

	wg.Wait()
}

func TestQueueClearCache(t *testing.T) {
	ring := newSPRing(t, DefaultDataLength)
	sender := New(ring, 1, DefaultDataLength)
	receiver := New(ring, 2, DefaultDataLength)
	receiver.ConnectAsReceiver()

	big := []byte(strings.Repeat("z", 100))
	require.True(t, sender.Send(big))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := receiver.Recv(ctx)
	require.NoError(t, err)

	receiver.ClearCache()
	require.Empty(t, receiver.cache)
}

