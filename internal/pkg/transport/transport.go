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

// Package transport declares the lower-layer collaborator that FUO rides
// on top of. BLE/serial/UDP transports implement this interface; FUO only
// consumes connect/observe, never wire bytes directly (those belong to the
// mgmtclient command clients).
package transport

// ConnState is the connection state reported to an Observer.
type ConnState uint8

const (
	// Disconnected - no active link to the device.
	Disconnected ConnState = iota
	// Connected - link established.
	Connected
)

// ConnectOutcome is the synchronous result of a connect() call.
type ConnectOutcome uint8

const (
	// OutcomeConnected - connect succeeded immediately.
	OutcomeConnected ConnectOutcome = iota
	// OutcomeDeferred - connect is in progress; a later state change will report success or failure.
	OutcomeDeferred
	// OutcomeFailed - connect failed synchronously.
	OutcomeFailed
)

// ConnectResult is returned from Transport.Connect.
type ConnectResult struct {
	Outcome ConnectOutcome
	Err     error
}

// Observer receives connection state change notifications.
type Observer interface {
	DidChangeStateTo(state ConnState)
}

// Transport is the external collaborator that carries request/response
// bytes for the command-group clients and reports connection lifecycle
// events. FUO never inspects the bytes it carries.
type Transport interface {
	// Connect attempts to (re-)establish the link to the device.
	Connect() ConnectResult
	// AddObserver registers o to receive DidChangeStateTo notifications.
	AddObserver(o Observer)
	// RemoveObserver deregisters a previously added observer.
	RemoveObserver(o Observer)
}
