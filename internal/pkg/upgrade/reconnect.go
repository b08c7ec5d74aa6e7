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
	"sync"
	"time"

	"github.com/skylineiot/fuo/internal/pkg/common"
	"github.com/skylineiot/fuo/internal/pkg/transport"
)

// ReconnectCoordinator drives the Reset state's wait described in
// spec.md §4.5: it registers as a transport.Observer as soon as it is
// constructed (the state machine builds one when the reset response
// arrives), so a disconnect reported before Await is entered is kept;
// Await then waits for that disconnect, sleeps
// out whatever remains of the estimated swap time, then calls Connect
// and follows up on a Deferred outcome until the link is Connected or a
// caller-supplied timeout expires. It is a one-shot: Await must not be
// called a second time on the same instance.
type ReconnectCoordinator struct {
	tr   transport.Transport
	swap time.Duration

	mu             sync.Mutex
	resetSentA     time.Time
	disconnectedCh chan time.Time
	connectedCh    chan struct{}
	watching       bool
}

// NewReconnectCoordinator builds a coordinator that watches tr for the
// disconnect/reconnect cycle following a reset sent at resetResponseTime,
// using swap as the estimated time the device needs to complete the
// image swap before it comes back up. The coordinator is registered as
// an observer of tr before it is returned; Await deregisters it.
func NewReconnectCoordinator(tr transport.Transport, resetResponseTime time.Time, swap time.Duration) *ReconnectCoordinator {
	c := &ReconnectCoordinator{
		tr:             tr,
		swap:           swap,
		resetSentA:     resetResponseTime,
		disconnectedCh: make(chan time.Time, 1),
		connectedCh:    make(chan struct{}, 1),
		watching:       true,
	}
	tr.AddObserver(c)
	return c
}

// Await blocks until the device has disconnected, the estimated swap
// delay has elapsed, Connect() has succeeded, and (if Connect reported
// OutcomeDeferred) a subsequent Connected notification has arrived — or
// until timeout elapses or ctx is canceled, whichever first. A non-nil
// return is always a *common.ConnectionFailedAfterResetError or the
// ctx.Err() left by the caller canceling ctx. The timeout is counted
// from the moment Await is entered.
func (c *ReconnectCoordinator) Await(ctx context.Context, timeout time.Duration) error {
	defer func() {
		c.tr.RemoveObserver(c)
		c.mu.Lock()
		c.watching = false
		c.mu.Unlock()
	}()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var disconnectedAt time.Time
	select {
	case disconnectedAt = <-c.disconnectedCh:
	case <-deadline.C:
		return &common.ConnectionFailedAfterResetError{Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return ctx.Err()
	}

	elapsed := disconnectedAt.Sub(c.resetSentA)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := c.swap - elapsed
	if remaining < 0 {
		remaining = 0
	}

	swapTimer := time.NewTimer(remaining)
	defer swapTimer.Stop()
	select {
	case <-swapTimer.C:
	case <-deadline.C:
		return &common.ConnectionFailedAfterResetError{Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		result := c.tr.Connect()
		switch result.Outcome {
		case transport.OutcomeConnected:
			return nil
		case transport.OutcomeFailed:
			return &common.ConnectionFailedAfterResetError{Cause: result.Err}
		case transport.OutcomeDeferred:
			select {
			case <-c.connectedCh:
				return nil
			case <-deadline.C:
				return &common.ConnectionFailedAfterResetError{Cause: context.DeadlineExceeded}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// DidChangeStateTo implements transport.Observer. It only ever touches
// c.mu-guarded state and buffered channels, so it never blocks the
// transport's own delivery goroutine.
func (c *ReconnectCoordinator) DidChangeStateTo(state transport.ConnState) {
	c.mu.Lock()
	watching := c.watching
	c.mu.Unlock()
	if !watching {
		return
	}
	switch state {
	case transport.Disconnected:
		select {
		case c.disconnectedCh <- time.Now():
		default:
		}
	case transport.Connected:
		select {
		case c.connectedCh <- struct{}{}:
		default:
		}
	}
}
