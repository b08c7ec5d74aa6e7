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
	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
)

// Delegate receives the lifecycle callbacks of spec.md §5/§6. A Delegate
// implementation must not block for long: it is invoked on the
// DelegateBus's own dispatch goroutine, and a slow delegate delays every
// event queued behind it.
type Delegate interface {
	// UpgradeDidStart fires once, when start() accepts a new upgrade.
	UpgradeDidStart()
	// UpgradeStateDidChange fires on every transition in the graph of
	// spec.md §4.1, including the entry into Success.
	UpgradeStateDidChange(state State)
	// UploadProgressDidChange fires for every progress tick reported by
	// the upload in flight.
	UploadProgressDidChange(event mgmtclient.ProgressEvent)
	// UpgradeDidComplete fires once, when the machine enters Success,
	// just before it returns to None.
	UpgradeDidComplete()
	// UpgradeDidFail fires once, with the state the machine was in when
	// the failure was detected and the error that caused it.
	UpgradeDidFail(state State, err error)
	// UpgradeDidCancel fires once, when a canceled upload is reported;
	// state is always None, the state the cancellation leaves behind.
	UpgradeDidCancel(state State)
}

// EventKind tags one DelegateBus event.
type EventKind uint8

const (
	EventStart EventKind = iota
	EventStateChange
	EventProgress
	EventComplete
	EventFail
	EventCancel
)

// Event is one entry in a DelegateBus queue. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind     EventKind
	State    State
	Progress mgmtclient.ProgressEvent
	Err      error
}

// DelegateBus serializes delegate callbacks onto a single dedicated
// goroutine so that a Delegate sees the total order spec.md §5 promises
// regardless of which goroutine (transport callback, timer, reconnect
// watcher) produced each event. It is modeled after the
// callback/options split in moffa90-go-cyacd's bootloader package,
// adapted here to a queue instead of direct calls so the machine never
// blocks on a slow observer while holding its own lock.
type DelegateBus struct {
	delegate Delegate
	queue    chan Event
	done     chan struct{}
}

// NewDelegateBus starts the dispatch goroutine and returns a bus posting
// to delegate. A nil delegate is valid: events are drained and dropped,
// which is how callers that do not care about progress run an upgrade.
func NewDelegateBus(delegate Delegate) *DelegateBus {
	b := &DelegateBus{
		delegate: delegate,
		queue:    make(chan Event, 64),
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *DelegateBus) run() {
	defer close(b.done)
	for ev := range b.queue {
		if b.delegate == nil {
			continue
		}
		switch ev.Kind {
		case EventStart:
			b.delegate.UpgradeDidStart()
		case EventStateChange:
			b.delegate.UpgradeStateDidChange(ev.State)
		case EventProgress:
			b.delegate.UploadProgressDidChange(ev.Progress)
		case EventComplete:
			b.delegate.UpgradeDidComplete()
		case EventFail:
			b.delegate.UpgradeDidFail(ev.State, ev.Err)
		case EventCancel:
			b.delegate.UpgradeDidCancel(ev.State)
		}
	}
}

// Emit enqueues ev for delivery, in order, on the dispatch goroutine.
// Emit blocks once the queue is full rather than drop an event; the
// queue is sized generously enough that this only happens against a
// delegate that is not keeping up.
func (b *DelegateBus) Emit(ev Event) {
	b.queue <- ev
}

// Close stops accepting new events and waits for the dispatch goroutine
// to drain the events already queued. Close must be called at most
// once, after the machine is certain no further Emit calls will occur.
func (b *DelegateBus) Close() {
	close(b.queue)
	<-b.done
}

func (b *DelegateBus) emitStart() { b.Emit(Event{Kind: EventStart}) }

func (b *DelegateBus) emitState(s State) { b.Emit(Event{Kind: EventStateChange, State: s}) }

func (b *DelegateBus) emitProgress(p mgmtclient.ProgressEvent) {
	b.Emit(Event{Kind: EventProgress, Progress: p})
}

func (b *DelegateBus) emitComplete() { b.Emit(Event{Kind: EventComplete}) }

func (b *DelegateBus) emitFail(s State, err error) {
	b.Emit(Event{Kind: EventFail, State: s, Err: err})
}

func (b *DelegateBus) emitCancel(s State) { b.Emit(Event{Kind: EventCancel, State: s}) }
