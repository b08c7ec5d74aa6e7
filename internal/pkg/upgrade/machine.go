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
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/skylineiot/fuo/internal/pkg/common"
	"github.com/skylineiot/fuo/internal/pkg/imagehash"
	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
	"github.com/skylineiot/fuo/internal/pkg/transport"
)

// upgrade FSM events
const (
	evStart         = "evStart"
	evParamsDone    = "evParamsDone"
	evRestartParams = "evRestartParams"
	evUpload        = "evUpload"
	evTest          = "evTest"
	evConfirm       = "evConfirm"
	evReset         = "evReset"
	evRevalidate    = "evRevalidate"
	evSuccess       = "evSuccess"
	evComplete      = "evComplete"
	evFail          = "evFail"
	evCancel        = "evCancel"
)

// DefaultReconnectTimeout bounds how long Await waits, from the moment
// the reset response is handled, for the disconnect and for the device
// to come back before the upgrade fails with ConnectionFailedAfterReset.
const DefaultReconnectTimeout = 60 * time.Second

// UpgradeStateMachine is the Firmware Upgrade Orchestrator's core (C5):
// it owns the upgrade's state, dispatches management commands, consumes
// their responses through the ValidationPlanner, and fans out lifecycle
// callbacks through a DelegateBus. Mirrors the teacher's OnuUpgradeFsm:
// a looplab/fsm.FSM wrapped by a common.AdapterFsm, with enter_<state>
// callbacks doing the real work and a mutex guarding the fields any of
// them might touch.
type UpgradeStateMachine struct {
	pAdaptFsm *common.AdapterFsm

	tr            transport.Transport
	imageClient   mgmtclient.ImageClient
	defaultClient mgmtclient.DefaultClient
	basicClient   mgmtclient.BasicClient
	hashParser    imagehash.Parser
	delegateBus   *DelegateBus

	reconnectTimeout time.Duration

	mu                sync.Mutex
	ctx               context.Context
	slates            []*ImageSlate
	uploadingSlates   []*ImageSlate
	config            Configuration
	mode              Mode
	estimatedSwapTime time.Duration
	paused            bool
	pausedState       State
	preResetState     State
	targetSlate       *ImageSlate
	resetResponseTime time.Time
	uploadHandle      mgmtclient.UploadHandle
	selfRef           *UpgradeStateMachine
}

// NewUpgradeStateMachine builds an idle machine addressing the given
// collaborators. SetMode/SetEstimatedSwapTime/SetReconnectTimeout may be
// called before Start to override the spec.md §6 defaults.
func NewUpgradeStateMachine(
	upgradeID string,
	tr transport.Transport,
	imageClient mgmtclient.ImageClient,
	defaultClient mgmtclient.DefaultClient,
	basicClient mgmtclient.BasicClient,
	hashParser imagehash.Parser,
	delegate Delegate,
) *UpgradeStateMachine {
	m := &UpgradeStateMachine{
		tr:               tr,
		imageClient:      imageClient,
		defaultClient:    defaultClient,
		basicClient:      basicClient,
		hashParser:       hashParser,
		delegateBus:      NewDelegateBus(delegate),
		reconnectTimeout: DefaultReconnectTimeout,
		mode:             DefaultMode,
	}

	m.pAdaptFsm = common.NewAdapterFsm("upgrade", upgradeID)
	m.pAdaptFsm.PFsm = fsm.NewFSM(
		string(StateNone),
		fsm.Events{
			{Name: evStart, Src: []string{string(StateNone)}, Dst: string(StateRequestParameters)},
			{Name: evParamsDone, Src: []string{string(StateRequestParameters)}, Dst: string(StateValidate)},
			{Name: evRestartParams, Src: []string{string(StateReset)}, Dst: string(StateRequestParameters)},
			{Name: evUpload, Src: []string{string(StateValidate)}, Dst: string(StateUpload)},
			{Name: evTest, Src: []string{string(StateValidate), string(StateUpload)}, Dst: string(StateTest)},
			{Name: evConfirm, Src: []string{string(StateValidate), string(StateUpload), string(StateReset)}, Dst: string(StateConfirm)},
			{Name: evReset, Src: []string{string(StateValidate), string(StateTest), string(StateConfirm)}, Dst: string(StateReset)},
			{Name: evRevalidate, Src: []string{string(StateValidate), string(StateReset)}, Dst: string(StateValidate)},
			{Name: evSuccess, Src: []string{string(StateValidate), string(StateReset), string(StateConfirm)}, Dst: string(StateSuccess)},
			{Name: evComplete, Src: []string{string(StateSuccess)}, Dst: string(StateNone)},
			{Name: evFail, Src: []string{
				string(StateRequestParameters), string(StateValidate), string(StateUpload),
				string(StateTest), string(StateReset), string(StateConfirm),
			}, Dst: string(StateNone)},
			{Name: evCancel, Src: []string{string(StateUpload)}, Dst: string(StateNone)},
		},
		fsm.Callbacks{
			"enter_state":                         func(e *fsm.Event) { m.onEnterState(e) },
			"enter_" + string(StateRequestParameters): func(e *fsm.Event) { m.dispatchOrDefer(StateRequestParameters, m.startRequestParameters) },
			"enter_" + string(StateValidate):          func(e *fsm.Event) { m.dispatchOrDefer(StateValidate, m.startValidate) },
			"enter_" + string(StateUpload):            func(e *fsm.Event) { m.dispatchOrDefer(StateUpload, m.startUpload) },
			"enter_" + string(StateTest):              func(e *fsm.Event) { m.dispatchOrDefer(StateTest, m.startTest) },
			"enter_" + string(StateConfirm):           func(e *fsm.Event) { m.dispatchOrDefer(StateConfirm, m.startConfirm) },
			"enter_" + string(StateReset):             func(e *fsm.Event) { m.dispatchOrDefer(StateReset, m.startReset) },
			"enter_" + string(StateSuccess):           func(e *fsm.Event) { m.dispatchOrDefer(StateSuccess, m.startSuccess) },
		},
	)
	return m
}

func (m *UpgradeStateMachine) onEnterState(e *fsm.Event) {
	m.pAdaptFsm.LogFsmStateChange(m.loggingCtx(), e)
	if e.Dst == string(StateNone) || e.Src == e.Dst {
		return
	}
	m.delegateBus.emitState(State(e.Dst))
}

func (m *UpgradeStateMachine) loggingCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

// SetMode overrides the default mode. Must be called before Start.
func (m *UpgradeStateMachine) SetMode(mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = mode
}

// SetEstimatedSwapTime overrides the default swap-time estimate. Must be
// called before Start.
func (m *UpgradeStateMachine) SetEstimatedSwapTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimatedSwapTime = d
}

// SetReconnectTimeout overrides DefaultReconnectTimeout.
func (m *UpgradeStateMachine) SetReconnectTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectTimeout = d
}

// CurrentState returns the machine's current position in the graph.
func (m *UpgradeStateMachine) CurrentState() State {
	return State(m.pAdaptFsm.PFsm.Current())
}

// IsInProgress implements spec.md §8 invariant 1.
func (m *UpgradeStateMachine) IsInProgress() bool {
	return m.CurrentState().IsInProgress()
}

// IsPaused reports whether pause() has been called without a matching resume().
func (m *UpgradeStateMachine) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// SelfReferenceHeld reports whether the machine is still holding the
// self-reference it takes on Start (spec.md §3/§8 invariant 4).
func (m *UpgradeStateMachine) SelfReferenceHeld() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selfRef != nil
}

// SetUploadMtu forwards an MTU constraint to the image client. Returns
// false without forwarding anything if mtu falls outside [23, 1024].
func (m *UpgradeStateMachine) SetUploadMtu(mtu int) bool {
	if mtu < MinMtu || mtu > MaxMtu {
		return false
	}
	return m.imageClient.SetMtu(mtu)
}

// Start begins an upgrade for images under configuration. Fails
// synchronously with AlreadyRunningError if an upgrade is already in
// progress, or with InvalidImageError if any image cannot be hashed.
func (m *UpgradeStateMachine) Start(ctx context.Context, images []mgmtclient.UploadImage, configuration Configuration) error {
	m.mu.Lock()
	// selfRef covers the window between a previous Start returning and
	// its asynchronous evStart leaving None.
	if m.CurrentState() != StateNone || m.selfRef != nil {
		m.mu.Unlock()
		return &common.AlreadyRunningError{}
	}

	slates := make([]*ImageSlate, 0, len(images))
	for _, img := range images {
		hash, err := m.hashParser.Parse(img.Data)
		if err != nil {
			m.mu.Unlock()
			return &common.InvalidImageError{Index: img.Index, Cause: err}
		}
		slates = append(slates, NewImageSlate(img.Index, img.Data, hash))
	}
	SortSlates(slates)

	m.ctx = ctx
	m.slates = slates
	m.config = configuration
	m.paused = false
	m.pausedState = ""
	m.targetSlate = nil
	m.selfRef = m
	m.mu.Unlock()

	// A fresh correlation id per run distinguishes consecutive upgrades
	// on the same machine in the logs; spec.md §5's Delegate carries no
	// id parameter, so this never reaches the callback payloads.
	m.pAdaptFsm.SetUpgradeID(uuid.New().String())

	m.delegateBus.emitStart()
	m.fireEvent(evStart)
	return nil
}

// Cancel aborts the upload in progress. A no-op outside Upload
// (spec.md §8 invariant 3).
func (m *UpgradeStateMachine) Cancel() {
	if m.CurrentState() != StateUpload {
		return
	}
	m.imageClient.CancelUpload()
}

// Pause defers the next command issuance at the current or any future
// state-entry boundary, and pauses the upload chunk pump if Upload is
// already in progress.
func (m *UpgradeStateMachine) Pause() {
	m.mu.Lock()
	m.paused = true
	inUpload := m.CurrentState() == StateUpload
	m.mu.Unlock()
	if inUpload {
		m.imageClient.PauseUpload()
	}
}

// Resume clears the paused flag and re-dispatches whatever state-entry
// action pause() deferred, or resumes the upload chunk pump.
func (m *UpgradeStateMachine) Resume() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.paused = false
	deferred := m.pausedState
	m.pausedState = ""
	inUpload := m.CurrentState() == StateUpload
	m.mu.Unlock()

	if inUpload {
		m.imageClient.ContinueUpload()
	}
	if deferred != "" {
		m.runStateAction(deferred)
	}
}

func (m *UpgradeStateMachine) dispatchOrDefer(state State, action func()) {
	m.mu.Lock()
	if m.paused {
		m.pausedState = state
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	action()
}

func (m *UpgradeStateMachine) runStateAction(state State) {
	switch state {
	case StateRequestParameters:
		m.startRequestParameters()
	case StateValidate:
		m.startValidate()
	case StateUpload:
		m.startUpload()
	case StateTest:
		m.startTest()
	case StateConfirm:
		m.startConfirm()
	case StateReset:
		m.startReset()
	case StateSuccess:
		m.startSuccess()
	}
}

// fireEvent drives the FSM from a goroutine distinct from the caller's,
// mirroring the teacher's "go func(apFsm){ apFsm.Event(...) }" idiom:
// looplab/fsm rejects an Event() call made from inside another event's
// callback, and most callers of fireEvent here are response callbacks
// that may run inside one.
func (m *UpgradeStateMachine) fireEvent(ev string) {
	go func() {
		if err := m.pAdaptFsm.PFsm.Event(ev); err != nil {
			logger.Debugw(m.loggingCtx(), "fsm event rejected", log.Fields{"event": ev, "error": err})
		}
	}()
}

func (m *UpgradeStateMachine) fail(err error) {
	m.mu.Lock()
	failureState := State(m.pAdaptFsm.PFsm.Current())
	m.paused = false
	m.pausedState = ""
	m.mu.Unlock()

	m.delegateBus.emitFail(failureState, err)
	m.fireEvent(evFail)
	m.releaseSelfRef()
}

func (m *UpgradeStateMachine) releaseSelfRef() {
	m.mu.Lock()
	m.selfRef = nil
	m.mu.Unlock()
}

// --- RequestParameters -------------------------------------------------

func (m *UpgradeStateMachine) startRequestParameters() {
	m.defaultClient.Params(func(resp *mgmtclient.ParamsResponse, err error) {
		m.mu.Lock()
		switch {
		case err != nil, resp == nil, resp.RC() == mgmtclient.RcCommandUnknown:
			// Absorbed silently per spec.md §4.7: older firmware predates
			// the command.
			m.config.ReassemblyBufferSize = 0
		default:
			m.config.ReassemblyBufferSize = resp.ReassemblyBufferSize
		}
		m.mu.Unlock()
		m.fireEvent(evParamsDone)
	})
}

// --- Validate ------------------------------------------------------------

func (m *UpgradeStateMachine) startValidate() {
	m.imageClient.List(func(resp *mgmtclient.ImageListResponse, err error) {
		if err != nil {
			m.fail(&common.TransportError{Cause: err})
			return
		}
		if resp == nil || resp.Slots == nil {
			m.fail(&common.NilResponseError{Command: "image-list"})
			return
		}
		if !resp.IsSuccess() {
			m.fail(&common.RemoteReturnCodeError{Command: "image-list", Code: resp.RC()})
			return
		}

		m.mu.Lock()
		slates := m.slates
		mode := m.mode
		m.mu.Unlock()

		decision := Plan(resp.Slots, slates, mode)
		switch decision.Kind {
		case DecisionUpload:
			m.fireEvent(evUpload)
		case DecisionTest:
			m.mu.Lock()
			m.targetSlate = decision.Slate
			m.mu.Unlock()
			m.fireEvent(evTest)
		case DecisionConfirm:
			m.mu.Lock()
			m.targetSlate = decision.Slate
			m.mu.Unlock()
			m.fireEvent(evConfirm)
		case DecisionReset:
			m.mu.Lock()
			m.preResetState = StateValidate
			m.mu.Unlock()
			m.fireEvent(evReset)
		case DecisionValidationConfirm:
			m.validationConfirm(decision.Hash)
		case DecisionSuccess:
			m.fireEvent(evSuccess)
		case DecisionFail:
			m.fail(decision.Err)
		}
	})
}

// validationConfirm implements spec.md §4.2's staged-foreign/confirmed
// branch: confirm whatever is in slot 0 to drop the secondary's
// confirmed status, then re-enter Validate. It bypasses the Confirm
// state entirely - the scenario in spec.md §8 (S5) observes no Confirm
// delegate event for this path. The re-entry calls startValidate
// directly: looplab/fsm runs no enter callback for a Validate -> Validate
// event.
func (m *UpgradeStateMachine) validationConfirm(primaryHash []byte) {
	m.imageClient.Confirm(primaryHash, func(resp *mgmtclient.ImageListResponse, err error) {
		if err != nil {
			m.fail(&common.TransportError{Cause: err})
			return
		}
		if resp == nil {
			m.fail(&common.NilResponseError{Command: "image-confirm"})
			return
		}
		if !resp.IsSuccess() {
			m.fail(&common.RemoteReturnCodeError{Command: "image-confirm", Code: resp.RC()})
			return
		}
		m.startValidate()
	})
}

// --- Upload ----------------------------------------------------------------

type uploadDelegateAdapter struct {
	m *UpgradeStateMachine
}

func (a *uploadDelegateAdapter) OnProgress(ev mgmtclient.ProgressEvent) {
	a.m.delegateBus.emitProgress(ev)
}

func (a *uploadDelegateAdapter) OnFinish() {
	a.m.handleUploadFinish()
}

func (a *uploadDelegateAdapter) OnCancel() {
	a.m.handleUploadCancel()
}

func (a *uploadDelegateAdapter) OnFail(err error) {
	a.m.fail(err)
}

func (m *UpgradeStateMachine) startUpload() {
	m.mu.Lock()
	toUpload := PendingUpload(m.slates)
	images := make([]mgmtclient.UploadImage, 0, len(toUpload))
	for _, s := range toUpload {
		images = append(images, mgmtclient.UploadImage{Index: s.Index, Data: s.Data})
	}
	m.uploadingSlates = toUpload
	cfg := m.config.uploadConfig()
	m.uploadHandle = m.imageClient.Upload(images, cfg, &uploadDelegateAdapter{m: m})
	m.mu.Unlock()
}

func (m *UpgradeStateMachine) handleUploadFinish() {
	m.mu.Lock()
	for _, s := range m.uploadingSlates {
		s.MarkUploaded()
	}
	eraseStillPending := m.config.EraseAppSettings
	m.mu.Unlock()

	if eraseStillPending {
		m.eraseAppSettings()
		return
	}
	m.proceedAfterUpload()
}

func (m *UpgradeStateMachine) handleUploadCancel() {
	// spec.md §4.3: the reported state is None, reflecting the cleared
	// state the cancellation leaves behind, not the pre-cancel state.
	m.delegateBus.emitCancel(StateNone)
	m.fireEvent(evCancel)
	m.releaseSelfRef()
}

// eraseAppSettings implements the double-gate of spec.md §4.3: a
// transport error or a response that is neither successful nor a
// benign non-zero return code is fatal; anything else clears the flag
// and proceeds as if erase had never been requested.
func (m *UpgradeStateMachine) eraseAppSettings() {
	m.basicClient.EraseAppSettings(func(resp mgmtclient.Response, err error) {
		if err != nil {
			m.fail(&common.TransportError{Cause: err})
			return
		}
		if resp == nil {
			m.fail(&common.NilResponseError{Command: "erase-app-settings"})
			return
		}
		if !resp.IsSuccess() && resp.RC() == 0 {
			m.fail(&common.RemoteReturnCodeError{Command: "erase-app-settings", Code: resp.RC()})
			return
		}
		m.mu.Lock()
		m.config.EraseAppSettings = false
		m.mu.Unlock()
		m.proceedAfterUpload()
	})
}

func (m *UpgradeStateMachine) proceedAfterUpload() {
	m.mu.Lock()
	mode := m.mode
	slates := m.slates
	m.mu.Unlock()

	if mode == ConfirmOnly {
		m.mu.Lock()
		m.targetSlate = FirstUnconfirmed(slates)
		m.mu.Unlock()
		m.fireEvent(evConfirm)
		return
	}
	m.mu.Lock()
	m.targetSlate = FirstUntested(slates)
	m.mu.Unlock()
	m.fireEvent(evTest)
}

// --- Test --------------------------------------------------------------

func (m *UpgradeStateMachine) startTest() {
	m.mu.Lock()
	target := m.targetSlate
	m.mu.Unlock()
	m.issueTest(target)
}

func (m *UpgradeStateMachine) issueTest(target *ImageSlate) {
	m.imageClient.Test(target.Hash, func(resp *mgmtclient.ImageListResponse, err error) {
		if err != nil {
			m.fail(&common.TransportError{Cause: err})
			return
		}
		if resp == nil || resp.Slots == nil {
			m.fail(&common.NilResponseError{Command: "image-test"})
			return
		}
		if !resp.IsSuccess() {
			m.fail(&common.RemoteReturnCodeError{Command: "image-test", Code: resp.RC()})
			return
		}

		m.mu.Lock()
		ordered := append([]*ImageSlate(nil), m.slates...)
		m.mu.Unlock()
		SortSlates(ordered)

		for _, s := range ordered {
			entry, ok := resp.Slots.Get(s.Index, 1)
			if !ok || !entry.Pending {
				if !s.Tested() {
					m.mu.Lock()
					m.targetSlate = s
					m.mu.Unlock()
					m.issueTest(s)
					return
				}
				m.fail(common.NewSemanticError(common.NotPending, "slot 1 did not come back pending after image-test"))
				return
			}
		}
		for _, s := range ordered {
			s.MarkTested()
		}
		m.mu.Lock()
		m.preResetState = StateTest
		m.mu.Unlock()
		m.fireEvent(evReset)
	})
}

// --- Confirm -------------------------------------------------------------

func (m *UpgradeStateMachine) startConfirm() {
	m.mu.Lock()
	target := m.targetSlate
	m.mu.Unlock()
	var hash []byte
	if target != nil {
		hash = target.Hash
	}
	m.issueConfirm(hash)
}

func (m *UpgradeStateMachine) issueConfirm(hash []byte) {
	m.imageClient.Confirm(hash, func(resp *mgmtclient.ImageListResponse, err error) {
		if err != nil {
			m.fail(&common.TransportError{Cause: err})
			return
		}
		if resp == nil || resp.Slots == nil {
			m.fail(&common.NilResponseError{Command: "image-confirm"})
			return
		}
		if !resp.IsSuccess() {
			m.fail(&common.RemoteReturnCodeError{Command: "image-confirm", Code: resp.RC()})
			return
		}

		m.mu.Lock()
		mode := m.mode
		m.mu.Unlock()

		if mode == ConfirmOnly {
			m.confirmOnlyScan(resp.Slots)
			return
		}
		m.testAndConfirmScan(resp.Slots)
	})
}

func (m *UpgradeStateMachine) confirmOnlyScan(report *mgmtclient.SlotReport) {
	m.mu.Lock()
	ordered := append([]*ImageSlate(nil), m.slates...)
	m.mu.Unlock()
	SortSlates(ordered)

	for _, s := range ordered {
		if s.Confirmed() {
			continue
		}
		_, primaryOK := report.Get(s.Index, 0)
		secondary, secondaryOK := report.Get(s.Index, 1)
		if !secondaryOK {
			if !primaryOK {
				m.fail(&common.InvalidResponseError{Command: "image-confirm", Reason: "slot 0 missing for a slate with no slot 1 entry"})
				return
			}
			s.MarkConfirmed()
			continue
		}
		switch {
		case secondary.Permanent:
			s.MarkConfirmed()
		case secondary.Pending:
			m.mu.Lock()
			m.preResetState = StateConfirm
			m.mu.Unlock()
			m.fireEvent(evReset)
			return
		case !s.Confirmed():
			m.issueConfirm(s.Hash)
			return
		default:
			m.fail(common.NewSemanticError(common.NotPermanent, "confirm did not result in a permanent image"))
			return
		}
	}

	m.mu.Lock()
	m.preResetState = StateConfirm
	m.mu.Unlock()
	m.fireEvent(evReset)
}

func (m *UpgradeStateMachine) testAndConfirmScan(report *mgmtclient.SlotReport) {
	m.mu.Lock()
	ordered := append([]*ImageSlate(nil), m.slates...)
	m.mu.Unlock()
	SortSlates(ordered)

	for _, s := range ordered {
		primary, ok := report.Get(s.Index, 0)
		if !ok {
			continue
		}
		if !bytes.Equal(primary.Hash, s.Hash) {
			m.fail(common.NewSemanticError(common.BootFailed, "slot 0 does not carry the expected hash after reset"))
			return
		}
		if !primary.Confirmed {
			m.fail(common.NewSemanticError(common.NotConfirmed, "slot 0 carries the expected hash but is not confirmed"))
			return
		}
		s.MarkConfirmed()
	}
	m.fireEvent(evSuccess)
}

// --- Reset + Reconnect -----------------------------------------------------

func (m *UpgradeStateMachine) startReset() {
	m.defaultClient.Reset(func(resp mgmtclient.Response, err error) {
		if err != nil {
			m.fail(&common.TransportError{Cause: err})
			return
		}
		if resp == nil {
			m.fail(&common.NilResponseError{Command: "default-reset"})
			return
		}
		if !resp.IsSuccess() {
			m.fail(&common.RemoteReturnCodeError{Command: "default-reset", Code: resp.RC()})
			return
		}
		m.mu.Lock()
		m.resetResponseTime = time.Now()
		m.mu.Unlock()
		go m.awaitReconnect()
	})
}

func (m *UpgradeStateMachine) awaitReconnect() {
	m.mu.Lock()
	resetAt := m.resetResponseTime
	swap := m.estimatedSwapTime
	timeout := m.reconnectTimeout
	ctx := m.ctx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	coordinator := NewReconnectCoordinator(m.tr, resetAt, swap)
	if err := coordinator.Await(ctx, timeout); err != nil {
		m.fail(err)
		return
	}

	m.mu.Lock()
	pre := m.preResetState
	mode := m.mode
	m.mu.Unlock()

	switch pre {
	case StateRequestParameters:
		m.fireEvent(evRestartParams)
	case StateValidate:
		m.fireEvent(evRevalidate)
	default: // StateTest or StateConfirm: the post-swap path of spec.md §4.5.
		if mode == TestAndConfirm {
			m.mu.Lock()
			m.targetSlate = nil
			m.mu.Unlock()
			m.fireEvent(evConfirm)
		} else {
			m.fireEvent(evSuccess)
		}
	}
}

// --- Success ---------------------------------------------------------------

func (m *UpgradeStateMachine) startSuccess() {
	m.delegateBus.emitComplete()
	m.releaseSelfRef()
	m.fireEvent(evComplete)
}
