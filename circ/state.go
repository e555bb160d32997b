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

package circ

import "fmt"

// ArrayState is a diagnostic snapshot of a ring's health, never read on
// the fast path, only for debugging and the cmd/ipc-debug tool.
type ArrayState struct {
	ConnCount    uint32
	Cursor       uint32
	SlotCount    uint32
	SlotsPending uint32
}

// LagWarning reports a human-readable diagnostic when the ring looks like
// it is close to stalling a producer (most slots still owed reads).
func (s ArrayState) LagWarning() (bool, string) {
	pct := float64(s.SlotsPending) / float64(s.SlotCount) * 100
	stalled := pct >= 95.0
	msg := fmt.Sprintf("conn_count=%d cursor=%d pending=%d/%d (%.1f%%)",
		s.ConnCount, s.Cursor, s.SlotsPending, s.SlotCount, pct)
	if stalled {
		msg = "RING NEAR SATURATION: " + msg + ", a lagging consumer will soon block the producer"
	}
	return stalled, msg
}
