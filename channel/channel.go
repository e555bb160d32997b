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

// Package channel is the public façade of the IPC core: connect/disconnect,
// send/recv, recv-count wait, and clear-recv, all built on circ and queue.
package channel

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/19317362/cpp-ipc/circ"
	"github.com/19317362/cpp-ipc/ipclog"
	"github.com/19317362/cpp-ipc/queue"
	"github.com/19317362/cpp-ipc/shm"
	"github.com/19317362/cpp-ipc/waiter"
)

// DefaultSlotCount is N from the data model: the ring's fixed slot count.
const DefaultSlotCount = 256

// config holds the options a Connect call can override.
type config struct {
	slots         uint32
	dataLength    uint32
	multiProducer bool
}

// Option configures a Connect call.
type Option func(*config)

// WithSlots overrides the ring's slot count N (must be a power of two).
func WithSlots(n uint32) Option {
	return func(c *config) { c.slots = n }
}

// WithDataLength overrides the per-fragment payload capacity.
func WithDataLength(n uint32) Option {
	return func(c *config) { c.dataLength = n }
}

// WithMultiProducer selects the multi-producer ring variant instead of
// the default single-producer one.
func WithMultiProducer() Option {
	return func(c *config) { c.multiProducer = true }
}

// Channel is a per-process handle on a named broadcast channel. It owns
// its shared-memory mapping but not the underlying named region, which is
// reference-counted process-globally by the shm package.
type Channel struct {
	name    string
	ring    queue.Ring
	q       *queue.Queue
	w       *waiter.Waiter
	traceID string
}

// waiterID derives the waiter's shared-memory wait-id from the channel
// name, so every Connect to the same name opens the same underlying futex
// word.
func waiterID(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Connect maps the named shared region (creating it if this is the first
// connection ever made to name) and returns a handle. The underlying
// ring's connection count is not incremented yet, that happens lazily on
// first Recv, matching the fact that only consumers need counting.
func Connect(name string, opts ...Option) (*Channel, error) {
	cfg := config{slots: DefaultSlotCount, dataLength: queue.DefaultDataLength}
	for _, opt := range opts {
		opt(&cfg)
	}

	dataSize := queue.DataSize(cfg.dataLength)

	var ring queue.Ring
	var err error
	if cfg.multiProducer {
		ring, err = circ.NewMPElemArray(name, cfg.slots, dataSize)
	} else {
		ring, err = circ.NewElemArray(name, cfg.slots, dataSize)
	}
	if err != nil {
		ipclog.L().WithError(err).WithField("channel", name).Warn("channel: connect failed")
		return nil, fmt.Errorf("channel: connect %q: %w", name, err)
	}

	w, err := waiter.Open(waiterID(name))
	if err != nil {
		ring.Close()
		return nil, fmt.Errorf("channel: connect %q: %w", name, err)
	}

	id := uuid.New()
	tag := binary.LittleEndian.Uint64(id[:8])

	q := queue.New(ring, tag, cfg.dataLength)
	q.AttachWaiter(w)

	c := &Channel{
		name:    name,
		ring:    ring,
		q:       q,
		w:       w,
		traceID: id.String(),
	}
	ipclog.L().WithField("channel", name).WithField("trace_id", c.traceID).Debug("channel: connected")
	return c, nil
}

// Name returns the channel's shared-memory name.
func (c *Channel) Name() string { return c.name }

// Disconnect decrements the connection count (if this handle had ever
// connected as a consumer) and releases the shared-memory mapping.
func (c *Channel) Disconnect() error {
	c.q.Disconnect()
	if err := c.w.Close(); err != nil {
		return fmt.Errorf("channel: disconnect %q: %w", c.name, err)
	}
	if err := c.ring.Close(); err != nil {
		return fmt.Errorf("channel: disconnect %q: %w", c.name, err)
	}
	ipclog.L().WithField("channel", c.name).WithField("trace_id", c.traceID).Debug("channel: disconnected")
	return nil
}

// ConnectAsReceiver performs this handle's lazy consumer connect
// immediately instead of deferring it to the first Recv call. Useful when
// a receiver must be counted, and have its start position fixed, before a
// producer it is racing against starts sending.
func (c *Channel) ConnectAsReceiver() {
	c.q.ConnectAsReceiver()
}

// RecvCount returns the ring's current connection count.
func (c *Channel) RecvCount() uint32 {
	return c.ring.ConnCount()
}

// State returns a diagnostic snapshot of the underlying ring, for tools
// like cmd/ipc-debug. Never used on the send/recv fast path.
func (c *Channel) State() circ.ArrayState {
	return c.ring.State()
}

// WaitForRecv polls RecvCount with a small backoff until it reaches at
// least n, or ctx is done.
func (c *Channel) WaitForRecv(ctx context.Context, n uint32) error {
	const (
		minBackoff = time.Millisecond
		maxBackoff = 20 * time.Millisecond
	)
	backoff := minBackoff
	for {
		if c.RecvCount() >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// Send publishes data as one or more fragments. Returns false for
// nil/empty data without changing any state.
func (c *Channel) Send(data []byte) bool {
	return c.q.Send(data)
}

// Recv returns the next complete message not sent by this same handle,
// blocking until one arrives or ctx is done. The first call performs this
// endpoint's lazy consumer connect.
func (c *Channel) Recv(ctx context.Context) ([]byte, error) {
	return c.q.Recv(ctx)
}

// ClearRecv destructively zeroes this channel's entire shared region.
// For test setup only.
func (c *Channel) ClearRecv() error {
	return shm.ZeroRegion(c.name)
}

// ClearRecv destructively zeroes the shared region for name without
// requiring a live Channel handle. For test setup only.
func ClearRecv(name string) error {
	return shm.ZeroRegion(name)
}
