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
	"bytes"

	"github.com/skylineiot/fuo/internal/pkg/common"
	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
)

// DecisionKind tags the outcome of one ValidationPlanner pass.
type DecisionKind uint8

const (
	// DecisionUpload - one or more slates remain unaccounted for; upload them.
	DecisionUpload DecisionKind = iota
	// DecisionTest - issue image-test for Slate.
	DecisionTest
	// DecisionConfirm - issue image-confirm for Slate (or slot 0 if Slate is nil).
	DecisionConfirm
	// DecisionReset - issue a device reset and revalidate/resume after reconnect.
	DecisionReset
	// DecisionValidationConfirm - confirm whatever is in slot 0 to drop a
	// foreign secondary's confirmed status, then re-enter Validate.
	DecisionValidationConfirm
	// DecisionSuccess - every slate is uploaded; the upgrade is complete.
	DecisionSuccess
	// DecisionFail - the scan encountered a condition that cannot be serviced.
	DecisionFail
)

// Decision is the planner's pure output for one Plan call: the state
// machine is solely responsible for dispatching it.
type Decision struct {
	Kind  DecisionKind
	Slate *ImageSlate
	Hash  []byte
	Err   error
}

// Plan implements the validation algorithm of spec.md §4.2. It is a pure
// function of (report, slates, mode) except for the monotonic progress
// flags it sets on the slates it recognizes as already serviced by the
// device — those are the slate's own bookkeeping, not a side effect on
// any external collaborator.
func Plan(report *mgmtclient.SlotReport, slates []*ImageSlate, mode Mode) Decision {
	ordered := append([]*ImageSlate(nil), slates...)
	SortSlates(ordered)

	for _, slate := range ordered {
		primary, primaryOK := report.Get(slate.Index, 0)
		secondary, secondaryOK := report.Get(slate.Index, 1)

		if primaryOK && bytes.Equal(primary.Hash, slate.Hash) {
			if primary.Confirmed || primary.Permanent {
				// already-done
				slate.MarkConfirmed()
				continue
			}
			// running-but-unconfirmed
			slate.MarkUploaded()
			if mode == ConfirmOnly || mode == TestAndConfirm {
				return Decision{Kind: DecisionConfirm, Slate: slate}
			}
			// TestOnly: nothing to do for this slate yet, keep scanning.
			continue
		}

		if secondaryOK && bytes.Equal(secondary.Hash, slate.Hash) {
			// staged-match
			slate.MarkUploaded()
			switch {
			case !secondary.Pending:
				switch mode {
				case TestOnly, TestAndConfirm:
					return Decision{Kind: DecisionTest, Slate: slate}
				default: // ConfirmOnly
					return Decision{Kind: DecisionConfirm, Slate: slate}
				}
			case secondary.Permanent:
				switch mode {
				case ConfirmOnly, TestAndConfirm:
					return Decision{Kind: DecisionReset}
				default: // TestOnly
					return Decision{Kind: DecisionFail, Err: common.NewSemanticError(
						common.AlreadyConfirmedCannotTest,
						"slot 1 image is already permanent and TestOnly was requested")}
				}
			default: // pending, not permanent
				switch mode {
				case ConfirmOnly:
					return Decision{Kind: DecisionConfirm, Slate: slate}
				default: // TestOnly, TestAndConfirm
					return Decision{Kind: DecisionReset}
				}
			}
		}

		if secondaryOK {
			// staged-foreign: slot 1 holds a different hash entirely.
			if secondary.Confirmed {
				if !primaryOK {
					return Decision{Kind: DecisionFail, Err: &common.InvalidResponseError{
						Command: "image-list",
						Reason:  "slot 0 missing while slot 1 reports a foreign confirmed image",
					}}
				}
				return Decision{Kind: DecisionValidationConfirm, Hash: primary.Hash}
			}
			if secondary.Pending {
				return Decision{Kind: DecisionReset}
			}
			// foreign, unconfirmed, not pending: nothing blocks overwriting
			// it with an upload; leave the slate for upload.
			continue
		}

		// absent: not found in either slot, leave for upload.
	}

	if AllUploaded(ordered) {
		return Decision{Kind: DecisionSuccess}
	}
	return Decision{Kind: DecisionUpload}
}
