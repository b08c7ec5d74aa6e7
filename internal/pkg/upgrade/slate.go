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

// Package upgrade implements the Firmware Upgrade Orchestrator core: the
// upgrade state machine, the validation planner, pause/resume/cancel
// semantics and reconnection handling around the device reset.
package upgrade

import (
	"bytes"
	"sort"
)

// ImageSlate is the in-memory per-image progress record described in
// spec.md §3. Flags are monotonic: once set, a slate never clears them
// within one upgrade; callers reach them only through the accessors
// below, never by direct field mutation, so that invariant holds by
// construction rather than by caller discipline.
type ImageSlate struct {
	Index uint8
	Data  []byte
	Hash  []byte

	uploaded  bool
	tested    bool
	confirmed bool
}

// NewImageSlate creates a slate for one image/hash pair. All progress
// flags start false.
func NewImageSlate(index uint8, data []byte, hash []byte) *ImageSlate {
	return &ImageSlate{Index: index, Data: data, Hash: hash}
}

// Uploaded reports whether the image has been fully uploaded.
func (s *ImageSlate) Uploaded() bool { return s.uploaded }

// Tested reports whether the image has been marked to run once on next boot.
func (s *ImageSlate) Tested() bool { return s.tested }

// Confirmed reports whether the image has been made permanent.
func (s *ImageSlate) Confirmed() bool { return s.confirmed }

// MarkUploaded sets the uploaded flag. Monotonic: never cleared.
func (s *ImageSlate) MarkUploaded() { s.uploaded = true }

// MarkTested sets the tested flag, implying uploaded (spec.md §3 invariant
// tested ⇒ uploaded).
func (s *ImageSlate) MarkTested() {
	s.uploaded = true
	s.tested = true
}

// MarkConfirmed sets the confirmed flag, implying uploaded (spec.md §3
// invariant confirmed ⇒ uploaded).
func (s *ImageSlate) MarkConfirmed() {
	s.uploaded = true
	s.confirmed = true
}

// HashEquals reports whether h matches this slate's hash byte-for-byte.
func (s *ImageSlate) HashEquals(h []byte) bool {
	return bytes.Equal(s.Hash, h)
}

// SortSlates orders slates first by Index ascending, then by Hash
// lexicographically (spec.md §3), the order upload proceeds in.
func SortSlates(slates []*ImageSlate) {
	sort.SliceStable(slates, func(i, j int) bool {
		if slates[i].Index != slates[j].Index {
			return slates[i].Index < slates[j].Index
		}
		return bytes.Compare(slates[i].Hash, slates[j].Hash) < 0
	})
}

// PendingUpload returns the slates that still need uploading, in upload
// order.
func PendingUpload(slates []*ImageSlate) []*ImageSlate {
	out := make([]*ImageSlate, 0, len(slates))
	for _, s := range slates {
		if !s.uploaded {
			out = append(out, s)
		}
	}
	SortSlates(out)
	return out
}

// AllUploaded reports whether every slate has been uploaded.
func AllUploaded(slates []*ImageSlate) bool {
	for _, s := range slates {
		if !s.uploaded {
			return false
		}
	}
	return true
}

// FirstUntested returns the first slate (in Index/Hash order) that has not
// yet been tested, or nil if all are tested.
func FirstUntested(slates []*ImageSlate) *ImageSlate {
	ordered := append([]*ImageSlate(nil), slates...)
	SortSlates(ordered)
	for _, s := range ordered {
		if !s.tested {
			return s
		}
	}
	return nil
}

// FirstUnconfirmed returns the first slate (in Index/Hash order) that has
// not yet been confirmed, or nil if all are confirmed.
func FirstUnconfirmed(slates []*ImageSlate) *ImageSlate {
	ordered := append([]*ImageSlate(nil), slates...)
	SortSlates(ordered)
	for _, s := range ordered {
		if !s.confirmed {
			return s
		}
	}
	return nil
}

// FindByHash returns the slate carrying hash, if any.
func FindByHash(slates []*ImageSlate, hash []byte) *ImageSlate {
	for _, s := range slates {
		if s.HashEquals(hash) {
			return s
		}
	}
	return nil
}
