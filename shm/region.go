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

// Package shm implements named, reference-counted shared-memory regions.
//
// A region is identified by name. The first Acquire for a name creates and
// zero-fills the backing object; later Acquire calls for the same name map
// the same bytes and bump a reference count. Release drops the caller's
// reference; the last Release unmaps the region and destroys the backing
// object.
package shm

import (
	"fmt"
	"os"
	"sync"

	"github.com/19317362/cpp-ipc/ipclog"
)

// sharedRegion is the process-wide, refcounted record for one named region.
type sharedRegion struct {
	mu   sync.Mutex
	refs int32
	mem  []byte
	file *os.File
	path string
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*sharedRegion)
)

// Region is a per-caller handle on a named shared-memory mapping. Multiple
// Regions for the same name share the same underlying bytes.
type Region struct {
	name     string
	shared   *sharedRegion
	released bool
}

// Acquire maps the named region of the given size, creating it if this is
// the first caller to reference that name. size is ignored for subsequent
// acquires of an already-mapped name; the existing mapping is returned.
func Acquire(name string, size int) (*Region, error) {
	if name == "" {
		return nil, fmt.Errorf("shm: empty region name")
	}
	if size <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", size)
	}

	registryMu.Lock()
	sr, ok := registry[name]
	if !ok {
		var err error
		sr, err = createOrOpen(name, size)
		if err != nil {
			registryMu.Unlock()
			ipclog.L().WithError(err).WithField("name", name).Warn("shm: acquire failed")
			return nil, err
		}
		registry[name] = sr
	}
	registryMu.Unlock()

	sr.mu.Lock()
	sr.refs++
	sr.mu.Unlock()

	return &Region{name: name, shared: sr}, nil
}

// Bytes returns the mapped region. The slice remains valid until Release.
func (r *Region) Bytes() []byte {
	return r.shared.mem
}

// Release drops this handle's reference. When the last handle for a name
// is released, the shared mapping is unmapped and the backing object is
// destroyed.
func (r *Region) Release() error {
	if r.released {
		return nil
	}
	r.released = true

	sr := r.shared
	sr.mu.Lock()
	sr.refs--
	last := sr.refs <= 0
	sr.mu.Unlock()

	if !last {
		return nil
	}

	registryMu.Lock()
	delete(registry, r.name)
	registryMu.Unlock()

	if err := destroy(sr); err != nil {
		ipclog.L().WithError(err).WithField("name", r.name).Warn("shm: destroy failed")
		return err
	}
	return nil
}

// Exists reports whether a region of the given name is already backed by
// an object on disk, without mapping it.
func Exists(name string) bool {
	_, err := os.Stat(regionPath(name))
	return err == nil
}

// Remove deletes the backing object for name, if present. Used by
// clear_recv-style destructive test setup; callers must hold no live
// Region for name when calling this.
func Remove(name string) error {
	return os.Remove(regionPath(name))
}

func regionPath(name string) string {
	dir := "/dev/shm"
	if !isDevShmAvailable() {
		dir = os.TempDir()
	}
	return dir + "/cpp_ipc_" + name
}

// ZeroRegion destructively overwrites the entire backing object for name
// with zero bytes, if it exists. This is for test setup only: it does not
// coordinate with live Region handles, which will observe the region
// reset out from under them.
func ZeroRegion(name string) error {
	path := regionPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("shm: zero %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("shm: zero %s: %w", path, err)
	}

	zeros := make([]byte, 4096)
	var off int64
	for off < info.Size() {
		n := int64(len(zeros))
		if off+n > info.Size() {
			n = info.Size() - off
		}
		if _, err := f.WriteAt(zeros[:n], off); err != nil {
			return fmt.Errorf("shm: zero %s: %w", path, err)
		}
		off += n
	}
	return nil
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}
