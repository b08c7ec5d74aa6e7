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

package upgrade

// State is the machine's position in the graph of spec.md §4.1.
type State string

const (
	// StateNone - idle; no upgrade running.
	StateNone State = "None"
	// StateRequestParameters - negotiating reassembly buffer size.
	StateRequestParameters State = "RequestParameters"
	// StateValidate - inspecting device slot occupancy against the desired images.
	StateValidate State = "Validate"
	// StateUpload - uploading images that are not yet present on the device.
	StateUpload State = "Upload"
	// StateTest - marking a staged image to run once on next boot.
	StateTest State = "Test"
	// StateReset - awaiting device reset, disconnect and reconnect.
	StateReset State = "Reset"
	// StateConfirm - making a staged/tested image permanent.
	StateConfirm State = "Confirm"
	// StateSuccess - terminal: upgrade completed successfully.
	StateSuccess State = "Success"
)

// IsInProgress reports whether s is any state other than None (spec.md §3).
func (s State) IsInProgress() bool { return s != StateNone }
