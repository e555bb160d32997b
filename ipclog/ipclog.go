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

// Package ipclog is the structured-logging seam shared by shm, waiter, and
// channel. Callers that want their own sink should call SetLogger once at
// startup; by default everything goes to a logrus logger owned by this
// package, at warn level, or debug level when IPC_DEBUG is set.
package ipclog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu  sync.RWMutex
	log logrus.FieldLogger = defaultLogger()
)

func defaultLogger() logrus.FieldLogger {
	l := logrus.New()
	if os.Getenv("IPC_DEBUG") != "" {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.WarnLevel)
	}
	return l
}

// SetLogger replaces the package-wide logger. Safe to call concurrently
// with L().
func SetLogger(l logrus.FieldLogger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// L returns the current package-wide logger.
func L() logrus.FieldLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
