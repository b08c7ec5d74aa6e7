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

import "time"

// ByteAlignment is the chunk-boundary alignment used while pipelining
// upload chunks.
type ByteAlignment uint8

const (
	// AlignDisabled - no alignment constraint.
	AlignDisabled ByteAlignment = 0
	// Align2 - align chunks to 2-byte boundaries.
	Align2 ByteAlignment = 2
	// Align4 - align chunks to 4-byte boundaries.
	Align4 ByteAlignment = 4
	// Align8 - align chunks to 8-byte boundaries.
	Align8 ByteAlignment = 8
	// Align16 - align chunks to 16-byte boundaries.
	Align16 ByteAlignment = 16
)

// UploadImage is one image handed to ImageClient.Upload.
type UploadImage struct {
	Index uint8
	Data  []byte
}

// UploadConfig carries the byte-level upload tuning FUO negotiates but
// does not itself implement (chunking/MTU/pipelining are the image
// client's concern, per spec.md §1).
type UploadConfig struct {
	PipelineDepth        int
	ByteAlignment        ByteAlignment
	ReassemblyBufferSize uint64
}

// ProgressEvent reports upload progress for one image.
type ProgressEvent struct {
	ImageIndex uint8
	BytesSent  uint64
	ImageSize  uint64
	Timestamp  time.Time
}

// UploadDelegate receives the lifecycle of a multi-image upload.
type UploadDelegate interface {
	OnProgress(ProgressEvent)
	OnFinish()
	OnCancel()
	OnFail(err error)
}

// UploadHandle lets the caller track a running upload.
type UploadHandle interface {
	Done() <-chan struct{}
}

// ImageClient is the image command-group client: upload, list, test and
// confirm. FUO consumes its request/response contract; chunking, MTU
// negotiation, pipelining and reassembly are the client's own concern.
type ImageClient interface {
	// List requests the device's current slot occupancy.
	List(cb func(*ImageListResponse, error))
	// Upload starts uploading images in the given order; delegate receives
	// progress/finish/cancel/fail callbacks.
	Upload(images []UploadImage, cfg UploadConfig, delegate UploadDelegate) UploadHandle
	// CancelUpload aborts the running upload, if any.
	CancelUpload()
	// PauseUpload pauses the chunk pump of the running upload, if any.
	PauseUpload()
	// ContinueUpload resumes a paused upload.
	ContinueUpload()
	// Test marks the slot holding hash to run once on next boot.
	Test(hash []byte, cb func(*ImageListResponse, error))
	// Confirm makes the slot holding hash permanent. A nil hash confirms
	// whatever currently occupies slot 0 (used by verify after a
	// TestAndConfirm reboot).
	Confirm(hash []byte, cb func(*ImageListResponse, error))
	// SetMtu forwards an MTU constraint to the upload pump. Returns false
	// if mtu is outside [23, 1024].
	SetMtu(mtu int) bool
}

// DefaultClient is the "default" command-group client: parameter
// negotiation and device reset.
type DefaultClient interface {
	// Params negotiates management-request tuning (notably the
	// per-request reassembly buffer cap).
	Params(cb func(*ParamsResponse, error))
	// Reset requests the device reboot.
	Reset(cb func(Response, error))
}

// BasicClient is the "basic" command-group client.
type BasicClient interface {
	// EraseAppSettings wipes application-layer persisted state ahead of
	// a test/confirm, to avoid schema conflicts with the incoming image.
	EraseAppSettings(cb func(Response, error))
}
