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

import "encoding/binary"

// DefaultDataLength is the default payload capacity of one fragment.
const DefaultDataLength = 16

// fragmentHeaderSize is sizeof(channel_tag) + sizeof(msg_id) +
// sizeof(int32 remain): 8 + 8 + 4.
const fragmentHeaderSize = 20

// DataSize returns the slot payload size a queue needs for the given
// fragment data length, per the fixed formula in the external interface:
// sizeof(channel_tag) + sizeof(msg_id) + sizeof(int32 remain) + dataLength.
func DataSize(dataLength uint32) uint32 {
	return fragmentHeaderSize + dataLength
}

// encodeFragment writes a fragment header and payload into slot, which
// must be at least DataSize(len(payload's capacity)) bytes.
func encodeFragment(slot []byte, channelTag, msgID uint64, remain int32, payload []byte) {
	binary.LittleEndian.PutUint64(slot[0:8], channelTag)
	binary.LittleEndian.PutUint64(slot[8:16], msgID)
	binary.LittleEndian.PutUint32(slot[16:20], uint32(remain))
	copy(slot[fragmentHeaderSize:], payload)
}

// decodeFragment reads a fragment header from slot and returns its fields
// plus a view of the full (dataLength-sized) payload area. Callers must
// use remainBytes (computed from remain) to know how many payload bytes
// are actually valid on a terminating fragment.
func decodeFragment(slot []byte, dataLength uint32) (channelTag, msgID uint64, remain int32, payload []byte) {
	channelTag = binary.LittleEndian.Uint64(slot[0:8])
	msgID = binary.LittleEndian.Uint64(slot[8:16])
	remain = int32(binary.LittleEndian.Uint32(slot[16:20]))
	payload = slot[fragmentHeaderSize : fragmentHeaderSize+dataLength]
	return
}
