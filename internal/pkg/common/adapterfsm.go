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

package common

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
)

// AdapterFsm bundles a looplab/fsm.FSM with the identifiers needed to log
// its transitions consistently. Mirrors the teacher's AdapterFsm, minus the
// inter-adapter comm channel (FUO dispatches management commands directly
// rather than routing through a shared message bus).
type AdapterFsm struct {
	fsmName   string
	upgradeID string
	PFsm      *fsm.FSM
}

// NewAdapterFsm creates an AdapterFsm shell; PFsm must be assigned by the
// caller once the Events/Callbacks are known.
func NewAdapterFsm(aName string, aUpgradeID string) *AdapterFsm {
	return &AdapterFsm{
		fsmName:   aName,
		upgradeID: aUpgradeID,
	}
}

// SetUpgradeID replaces the correlation id carried on every subsequent
// LogFsmStateChange call. Callers mint a fresh id per start() so
// consecutive upgrades on the same machine are distinguishable in logs.
func (a *AdapterFsm) SetUpgradeID(id string) {
	a.upgradeID = id
}

// LogFsmStateChange logs a single FSM state transition with correlation fields.
func (a *AdapterFsm) LogFsmStateChange(ctx context.Context, e *fsm.Event) {
	logger.Debugw(ctx, "fsm state change", log.Fields{
		"upgrade-id": a.upgradeID,
		"fsm-name":   a.fsmName,
		"event":      e.Event,
		"src":        e.Src,
		"dst":        e.Dst,
	})
}
