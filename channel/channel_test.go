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

package channel

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func uniqueName(t *testing.T) string {
	return fmt.Sprintf("channel-test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestChannelSendRecvRoundTrip(t *testing.T) {
	name := uniqueName(t)

	producer, err := Connect(name)
	require.NoError(t, err)
	defer producer.Disconnect()

	consumer, err := Connect(name)
	require.NoError(t, err)
	defer consumer.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan []byte, 1)
	go func() {
		msg, err := consumer.Recv(ctx)
		require.NoError(t, err)
		done <- msg
	}()

	require.NoError(t, consumer.WaitForRecv(ctx, 1))
	require.True(t, producer.Send([]byte("ping")))

	select {
	case msg := <-done:
		require.Equal(t, []byte("ping"), msg)
	case <-ctx.Done():
		t.Fatal("timed out waiting for recv")
	}
}

func TestChannelRecvCountAndWaitForRecv(t *testing.T) {
	name := uniqueName(t)

	producer, err := Connect(name)
	require.NoError(t, err)
	defer producer.Disconnect()

	require.EqualValues(t, 0, producer.RecvCount())

	consumer, err := Connect(name)
	require.NoError(t, err)
	defer consumer.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	recvDone := make(chan struct{})
	go func() {
		consumer.Recv(ctx) //nolint:errcheck // only used to trigger the lazy connect
		close(recvDone)
	}()

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, producer.WaitForRecv(ctx2, 1))
	require.EqualValues(t, 1, producer.RecvCount())

	require.True(t, producer.Send([]byte("x")))
	<-recvDone
}

func TestChannelSendEmptyFails(t *testing.T) {
	name := uniqueName(t)
	c, err := Connect(name)
	require.NoError(t, err)
	defer c.Disconnect()

	require.False(t, c.Send(nil))
}

func TestChannelClearRecv(t *testing.T) {
	name := uniqueName(t)
	c, err := Connect(name)
	require.NoError(t, err)
	defer c.Disconnect()

	require.True(t, c.Send([]byte("data")))
	require.NoError(t, ClearRecv(name))
}

func TestChannelMultiProducer(t *testing.T) {
	name := uniqueName(t)

	p1, err := Connect(name, WithMultiProducer())
	require.NoError(t, err)
	defer p1.Disconnect()

	p2, err := Connect(name, WithMultiProducer())
	require.NoError(t, err)
	defer p2.Disconnect()

	consumer, err := Connect(name, WithMultiProducer())
	require.NoError(t, err)
	defer consumer.Disconnect()

	consumer.ConnectAsReceiver()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- boolToErr(p1.Send([]byte("from p1"))) }()
	go func() { errs <- boolToErr(p2.Send([]byte("from p2"))) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	seen := map[string]bool{}
	for len(seen) < 2 {
		msg, err := consumer.Recv(ctx)
		require.NoError(t, err)
		seen[string(msg)] = true
	}
	require.True(t, seen["from p1"])
	require.True(t, seen["from p2"])
}

func boolToErr(ok bool) error {
	if ok {
		return nil
	}
	return fmt.Errorf("send returned false")
}
