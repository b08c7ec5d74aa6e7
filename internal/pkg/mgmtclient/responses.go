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

// Package mgmtclient declares the command-group client contracts FUO
// consumes (image, reset and "basic" groups, following the field
// vocabulary of the Apache Mynewt newtmgr image-management protocol) and
// their request/response types. It does not implement the wire format;
// real clients encode/decode these over whatever transport.Transport
// carries.
package mgmtclient

// RcCommandUnknown is the return code devices use to signal that a
// management command predates their firmware (spec.md §4.7).
const RcCommandUnknown = 8

// Response is the contract every management command response satisfies.
type Response interface {
	// IsSuccess reports whether the device considered the command successful.
	IsSuccess() bool
	// RC returns the raw device return code.
	RC() int
}

// BaseResponse is an embeddable Response implementation.
type BaseResponse struct {
	Rc int
}

// IsSuccess - a BaseResponse is successful iff its return code is zero.
func (r BaseResponse) IsSuccess() bool { return r.Rc == 0 }

// RC returns the raw device return code.
func (r BaseResponse) RC() int { return r.Rc }

// ImageListResponse is the decoded image-list/test/confirm response: a
// snapshot of the device's current slot occupancy.
type ImageListResponse struct {
	BaseResponse
	Slots *SlotReport
}

// ParamsResponse is the decoded default-params response.
type ParamsResponse struct {
	BaseResponse
	ReassemblyBufferSize uint64
}
