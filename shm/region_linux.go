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

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// createOrOpen creates the backing file for name if absent, or opens it if
// another process already created it, then mmaps size bytes of it.
func createOrOpen(name string, size int) (*sharedRegion, error) {
	path := regionPath(name)

	file, created, err := openOrCreate(path)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}

	if created {
		if err := file.Truncate(int64(size)); err != nil {
			file.Close()
			os.Remove(path)
			return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
		}
	} else {
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("shm: stat %s: %w", path, err)
		}
		if int(info.Size()) > size {
			size = int(info.Size())
		}
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		if created {
			os.Remove(path)
		}
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	return &sharedRegion{mem: mem, file: file, path: path}, nil
}

// openOrCreate tries to create path exclusively; if it already exists it
// opens the existing file instead. created reports which branch was taken.
func openOrCreate(path string) (file *os.File, created bool, err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err == nil {
		return f, true, nil
	}
	if !os.IsExist(err) {
		return nil, false, err
	}
	f, err = os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

func destroy(sr *sharedRegion) error {
	var firstErr error
	if err := unix.Munmap(sr.mem); err != nil {
		firstErr = fmt.Errorf("shm: munmap %s: %w", sr.path, err)
	}
	if err := sr.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("shm: close %s: %w", sr.path, err)
	}
	if err := os.Remove(sr.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = fmt.Errorf("shm: remove %s: %w", sr.path, err)
	}
	return firstErr
}
