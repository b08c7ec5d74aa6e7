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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skylineiot/fuo/internal/pkg/common"
	"github.com/skylineiot/fuo/internal/pkg/transport"
)

// fakeTransport is a minimal transport.Transport double that lets tests
// drive Connect's outcome and fire observer notifications on demand.
type fakeTransport struct {
	mu       sync.Mutex
	observer transport.Observer
	connect  func() transport.ConnectResult
	calls    int
}

func (f *fakeTransport) Connect() transport.ConnectResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.connect()
}

func (f *fakeTransport) AddObserver(o transport.Observer) {
	f.mu.Lock()
	f.observer = o
	f.mu.Unlock()
}

func (f *fakeTransport) RemoveObserver(o transport.Observer) {
	f.mu.Lock()
	if f.observer == o {
		f.observer = nil
	}
	f.mu.Unlock()
}

func (f *fakeTransport) notify(s transport.ConnState) {
	f.mu.Lock()
	o := f.observer
	f.mu.Unlock()
	if o != nil {
		o.DidChangeStateTo(s)
	}
}

func TestReconnectCoordinatorAwaitsDisconnectSwapAndConnect(t *testing.T) {
	tr := &fakeTransport{connect: func() transport.ConnectResult {
		return transport.ConnectResult{Outcome: transport.OutcomeConnected}
	}}
	resetAt := time.Now()
	c := NewReconnectCoordinator(tr, resetAt, 10*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Await(context.Background(), time.Second) }()

	time.Sleep(5 * time.Millisecond)
	tr.notify(transport.Disconnected)

	require.NoError(t, <-errCh)
	require.Equal(t, 1, tr.calls)
}

func TestReconnectCoordinatorDeferredWaitsForConnectedNotification(t *testing.T) {
	tr := &fakeTransport{connect: func() transport.ConnectResult {
		return transport.ConnectResult{Outcome: transport.OutcomeDeferred}
	}}
	c := NewReconnectCoordinator(tr, time.Now(), time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Await(context.Background(), time.Second) }()

	tr.notify(transport.Disconnected)
	time.Sleep(5 * time.Millisecond)
	tr.notify(transport.Connected)

	require.NoError(t, <-errCh)
}

func TestReconnectCoordinatorConnectFailureReturnsError(t *testing.T) {
	cause := errors.New("link down")
	tr := &fakeTransport{connect: func() transport.ConnectResult {
		return transport.ConnectResult{Outcome: transport.OutcomeFailed, Err: cause}
	}}
	c := NewReconnectCoordinator(tr, time.Now(), time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Await(context.Background(), time.Second) }()

	tr.notify(transport.Disconnected)

	err := <-errCh
	var connErr *common.ConnectionFailedAfterResetError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, cause, connErr.Cause)
}

func TestReconnectCoordinatorTimesOutWithoutDisconnect(t *testing.T) {
	tr := &fakeTransport{connect: func() transport.ConnectResult {
		return transport.ConnectResult{Outcome: transport.OutcomeConnected}
	}}
	c := NewReconnectCoordinator(tr, time.Now(), time.Millisecond)

	err := c.Await(context.Background(), 10*time.Millisecond)

	var connErr *common.ConnectionFailedAfterResetError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, 0, tr.calls)
}

func TestReconnectCoordinatorRespectsCancellation(t *testing.T) {
	tr := &fakeTransport{connect: func() transport.ConnectResult {
		return transport.ConnectResult{Outcome: transport.OutcomeConnected}
	}}
	c := NewReconnectCoordinator(tr, time.Now(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- c.Await(ctx, time.Second) }()

	time.Sleep(5 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-errCh, context.Canceled)
}

func TestReconnectCoordinatorIgnoresNotificationsAfterAwaitReturns(t *testing.T) {
	tr := &fakeTransport{connect: func() transport.ConnectResult {
		return transport.ConnectResult{Outcome: transport.OutcomeConnected}
	}}
	c := NewReconnectCoordinator(tr, time.Now(), time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Await(context.Background(), time.Second) }()
	tr.notify(transport.Disconnected)
	require.NoError(t, <-errCh)

	// Await removed itself as an observer on return, so this must not
	// panic or deadlock even though nothing is listening any more.
	c.DidChangeStateTo(transport.Connected)
}
