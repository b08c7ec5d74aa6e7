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

import (
	"time"

	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
)

// Mode selects the upgrade's transition graph (spec.md §3/§4.1).
type Mode uint8

const (
	// TestOnly - stage and test, never confirm automatically.
	TestOnly Mode = iota
	// ConfirmOnly - stage and confirm directly, skipping test.
	ConfirmOnly
	// TestAndConfirm - stage, test, reboot, then verify and confirm.
	TestAndConfirm
)

func (m Mode) String() string {
	switch m {
	case TestOnly:
		return "TestOnly"
	case ConfirmOnly:
		return "ConfirmOnly"
	case TestAndConfirm:
		return "TestAndConfirm"
	default:
		return "Unknown"
	}
}

// Minimum and maximum MTU accepted by setUploadMtu (spec.md §4.1).
const (
	MinMtu = 23
	MaxMtu = 1024
)

// Configuration is the immutable-for-the-duration upgrade configuration
// of spec.md §3. EraseAppSettings is cleared once serviced and
// ReassemblyBufferSize is filled in after parameter negotiation; every
// other field is fixed once start() is called.
type Configuration struct {
	EraseAppSettings     bool
	PipelineDepth        int
	ByteAlignment        mgmtclient.ByteAlignment
	ReassemblyBufferSize uint64
}

// DefaultConfiguration returns the spec.md §6 defaults.
func DefaultConfiguration() Configuration {
	return Configuration{
		EraseAppSettings:     true,
		PipelineDepth:        1,
		ByteAlignment:        mgmtclient.AlignDisabled,
		ReassemblyBufferSize: 0,
	}
}

// DefaultMode is the spec.md §6 default mode.
const DefaultMode = ConfirmOnly

// DefaultEstimatedSwapTime is the spec.md §6 default swap-time estimate.
const DefaultEstimatedSwapTime time.Duration = 0

func (c Configuration) uploadConfig() mgmtclient.UploadConfig {
	return mgmtclient.UploadConfig{
		PipelineDepth:        c.PipelineDepth,
		ByteAlignment:        c.ByteAlignment,
		ReassemblyBufferSize: c.ReassemblyBufferSize,
	}
}
