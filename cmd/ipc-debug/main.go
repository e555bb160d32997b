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

// Command ipc-debug reports the live state of a named channel: connection
// count, cursor position, and how many slots are still owed reads.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/19317362/cpp-ipc/channel"
)

func main() {
	name := flag.String("channel", "", "name of the channel to inspect")
	watch := flag.Duration("watch", 0, "if set, re-poll and print state at this interval until interrupted")
	flag.Parse()

	if *name == "" {
		log.Fatal("ipc-debug: -channel is required")
	}

	c, err := channel.Connect(*name)
	if err != nil {
		log.Fatalf("ipc-debug: connect %q: %v", *name, err)
	}
	defer c.Disconnect()

	printState(*name, c)
	if *watch <= 0 {
		return
	}
	for range time.Tick(*watch) {
		printState(*name, c)
	}
}

func printState(name string, c *channel.Channel) {
	st := c.State()
	fmt.Printf("channel=%s recv_count=%d cursor=%d slots=%d pending=%d\n",
		name, c.RecvCount(), st.Cursor, st.SlotCount, st.SlotsPending)
	if stalled, msg := st.LagWarning(); stalled {
		fmt.Println(msg)
	}
}
