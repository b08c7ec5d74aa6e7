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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skylineiot/fuo/internal/pkg/common"
	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
)

func slateFor(index uint8, hash byte) *ImageSlate {
	return NewImageSlate(index, []byte{0x01}, []byte{hash})
}

func TestPlanAbsentSlateIsUpload(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	slates := []*ImageSlate{slateFor(0, 0xAA)}

	d := Plan(report, slates, ConfirmOnly)

	require.Equal(t, DecisionUpload, d.Kind)
	require.False(t, slates[0].Uploaded())
}

func TestPlanAlreadyDoneMarksConfirmedAndContinues(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 0, Hash: []byte{0xAA}, Confirmed: true, Permanent: true, Active: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionSuccess, d.Kind)
	require.True(t, slate.Confirmed())
	require.True(t, slate.Uploaded())
}

func TestPlanRunningUnconfirmedConfirmOnlyIssuesConfirm(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 0, Hash: []byte{0xAA}, Active: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionConfirm, d.Kind)
	require.Same(t, slate, d.Slate)
	require.True(t, slate.Uploaded())
	require.False(t, slate.Confirmed())
}

func TestPlanRunningUnconfirmedTestOnlyKeepsScanning(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 0, Hash: []byte{0xAA}, Active: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, TestOnly)

	require.Equal(t, DecisionSuccess, d.Kind)
	require.True(t, slate.Uploaded())
}

func TestPlanStagedMatchNotPendingTestOnlyIssuesTest(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xAA}})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, TestOnly)

	require.Equal(t, DecisionTest, d.Kind)
	require.Same(t, slate, d.Slate)
}

func TestPlanStagedMatchNotPendingConfirmOnlyIssuesConfirm(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xAA}})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionConfirm, d.Kind)
	require.Same(t, slate, d.Slate)
}

func TestPlanStagedMatchPermanentConfirmOnlyResets(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xAA}, Pending: true, Permanent: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionReset, d.Kind)
}

func TestPlanStagedMatchPermanentTestOnlyFails(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xAA}, Pending: true, Permanent: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, TestOnly)

	require.Equal(t, DecisionFail, d.Kind)
	var semErr *common.SemanticError
	require.ErrorAs(t, d.Err, &semErr)
	require.Equal(t, common.AlreadyConfirmedCannotTest, semErr.Kind)
}

func TestPlanStagedMatchPendingNotPermanentConfirmOnlyIssuesConfirm(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xAA}, Pending: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionConfirm, d.Kind)
}

func TestPlanStagedMatchPendingNotPermanentTestAndConfirmResets(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xAA}, Pending: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, TestAndConfirm)

	require.Equal(t, DecisionReset, d.Kind)
}

func TestPlanStagedForeignConfirmedReturnsValidationConfirm(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 0, Hash: []byte{0xCC}, Confirmed: true, Permanent: true, Active: true})
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xBB}, Confirmed: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionValidationConfirm, d.Kind)
	require.Equal(t, []byte{0xCC}, d.Hash)
}

func TestPlanStagedForeignConfirmedMissingPrimaryFails(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xBB}, Confirmed: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, ConfirmOnly)

	require.Equal(t, DecisionFail, d.Kind)
	var invalid *common.InvalidResponseError
	require.ErrorAs(t, d.Err, &invalid)
}

func TestPlanStagedForeignPendingResets(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xBB}, Pending: true})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, TestOnly)

	require.Equal(t, DecisionReset, d.Kind)
}

func TestPlanStagedForeignUnconfirmedNotPendingLeavesForUpload(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 1, Hash: []byte{0xBB}})
	slate := slateFor(0, 0xAA)

	d := Plan(report, []*ImageSlate{slate}, TestOnly)

	require.Equal(t, DecisionUpload, d.Kind)
	require.False(t, slate.Uploaded())
}

func TestPlanAllUploadedIsSuccess(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 0, Slot: 0, Hash: []byte{0xAA}, Confirmed: true, Permanent: true})
	report.Add(mgmtclient.SlotEntry{Image: 1, Slot: 0, Hash: []byte{0xBB}, Confirmed: true, Permanent: true})
	slates := []*ImageSlate{slateFor(1, 0xBB), slateFor(0, 0xAA)}

	d := Plan(report, slates, ConfirmOnly)

	require.Equal(t, DecisionSuccess, d.Kind)
}

func TestPlanScansInIndexOrder(t *testing.T) {
	report := mgmtclient.NewSlotReport()
	report.Add(mgmtclient.SlotEntry{Image: 1, Slot: 0, Hash: []byte{0xBB}, Active: true})
	slates := []*ImageSlate{slateFor(1, 0xBB), slateFor(0, 0xAA)}

	d := Plan(report, slates, ConfirmOnly)

	// image 0 is scanned first but is absent, which only "continues", so
	// the loop proceeds to image 1 and its running-but-unconfirmed entry
	// produces the decision.
	require.Equal(t, DecisionConfirm, d.Kind)
	require.Equal(t, uint8(1), d.Slate.Index)
}
