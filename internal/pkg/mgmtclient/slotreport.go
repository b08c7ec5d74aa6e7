/*
 * Copyright 2020-present Open Networking Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package mgmtclient

import (
	"fmt"

	om "github.com/cevaris/ordered_map"
)

// SlotEntry is one record of a device image-list response, following the
// field vocabulary of the newtmgr ImageStateEntry: identity (image/slot),
// content (hash) and status flags.
type SlotEntry struct {
	Image     uint8
	Slot      uint8
	Hash      []byte
	Confirmed bool
	Pending   bool
	Permanent bool
	Active    bool
}

// SlotReport is an unordered-on-the-wire, deterministically-iterable
// collection of SlotEntry records, queried by (image, slot). Backed by
// ordered_map the same way the teacher's devdb.OnuDeviceDB backs its ME
// table, so that repeated decode-and-scan cycles (the planner re-entering
// Validate after a validationConfirm, per spec.md §4.2) are reproducible
// in tests and logs.
type SlotReport struct {
	entries *om.OrderedMap
}

func slotKey(image, slot uint8) string {
	return fmt.Sprintf("%d:%d", image, slot)
}

// NewSlotReport creates an empty report.
func NewSlotReport() *SlotReport {
	return &SlotReport{entries: om.NewOrderedMap()}
}

// Add records an entry, overwriting any existing entry for the same
// (image, slot) pair.
func (r *SlotReport) Add(e SlotEntry) {
	r.entries.Set(slotKey(e.Image, e.Slot), e)
}

// Get looks up the entry for (image, slot).
func (r *SlotReport) Get(image, slot uint8) (SlotEntry, bool) {
	v, ok := r.entries.Get(slotKey(image, slot))
	if !ok {
		return SlotEntry{}, false
	}
	return v.(SlotEntry), true
}

// Entries returns all records in insertion order.
func (r *SlotReport) Entries() []SlotEntry {
	out := make([]SlotEntry, 0, r.entries.Len())
	iter := r.entries.IterFunc()
	for kv, ok := iter(); ok; kv, ok = iter() {
		out = append(out, kv.Value.(SlotEntry))
	}
	return out
}

// Len reports the number of recorded entries.
func (r *SlotReport) Len() int { return r.entries.Len() }
