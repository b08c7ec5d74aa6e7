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
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
)

// recordingDelegate captures the order lifecycle callbacks arrive in, so
// tests can assert on the total order a DelegateBus promises.
type recordingDelegate struct {
	mu     sync.Mutex
	events []string
}

func (d *recordingDelegate) record(s string) {
	d.mu.Lock()
	d.events = append(d.events, s)
	d.mu.Unlock()
}

func (d *recordingDelegate) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *recordingDelegate) UpgradeDidStart() { d.record("start") }
func (d *recordingDelegate) UpgradeStateDidChange(state State) {
	d.record("state:" + string(state))
}
func (d *recordingDelegate) UploadProgressDidChange(mgmtclient.ProgressEvent) { d.record("progress") }
func (d *recordingDelegate) UpgradeDidComplete()                              { d.record("complete") }
func (d *recordingDelegate) UpgradeDidFail(state State, err error)           { d.record("fail:" + string(state)) }
func (d *recordingDelegate) UpgradeDidCancel(state State)                    { d.record("cancel:" + string(state)) }

func TestDelegateBusPreservesEmitOrder(t *testing.T) {
	rec := &recordingDelegate{}
	bus := NewDelegateBus(rec)

	bus.emitStart()
	bus.emitState(StateRequestParameters)
	bus.emitState(StateValidate)
	bus.emitProgress(mgmtclient.ProgressEvent{ImageIndex: 0, BytesSent: 10, ImageSize: 20})
	bus.emitComplete()
	bus.Close()

	require.Equal(t, []string{
		"start",
		"state:RequestParameters",
		"state:Validate",
		"progress",
		"complete",
	}, rec.snapshot())
}

func TestDelegateBusNilDelegateDrainsWithoutPanic(t *testing.T) {
	bus := NewDelegateBus(nil)
	bus.emitStart()
	bus.emitFail(StateUpload, errors.New("boom"))
	bus.Close()
}
