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

package main

import (
	"bytes"
	"sync"
	"time"

	"github.com/skylineiot/fuo/internal/pkg/imagehash"
	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
	"github.com/skylineiot/fuo/internal/pkg/transport"
)

// simSlot is one (image, slot) record of the simulated device's flash.
type simSlot struct {
	hash      []byte
	confirmed bool
	pending   bool
	permanent bool
	active    bool
}

// simDevice is a small in-memory stand-in for a real DFU-capable device,
// wired to every collaborator interface FUO consumes. It exists so
// fuoctl has something to drive end to end without real hardware,
// following the mock-device pattern of moffa90-go-cyacd's examples.
type simDevice struct {
	mu       sync.Mutex
	slots    map[uint8][2]*simSlot // image index -> [slot0, slot1]
	mtu      int
	latency  time.Duration
	observer transport.Observer

	resetCount int
}

func newSimDevice(latency time.Duration) *simDevice {
	return &simDevice{
		slots:   make(map[uint8][2]*simSlot),
		mtu:     512,
		latency: latency,
	}
}

// seedPrimary gives image index a currently-running, confirmed slot-0
// image with a hash that never matches a real upload, so every demo
// run starts needing a fresh upload.
func (d *simDevice) seedPrimary(index uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pair := d.slots[index]
	pair[0] = &simSlot{hash: []byte{0xAA, 0xBB, 0xCC, 0xDD}, confirmed: true, permanent: true, active: true}
	d.slots[index] = pair
}

func (d *simDevice) snapshot() *mgmtclient.SlotReport {
	d.mu.Lock()
	defer d.mu.Unlock()
	report := mgmtclient.NewSlotReport()
	for index, pair := range d.slots {
		for slotNum, s := range pair {
			if s == nil {
				continue
			}
			report.Add(mgmtclient.SlotEntry{
				Image:     index,
				Slot:      uint8(slotNum),
				Hash:      s.hash,
				Confirmed: s.confirmed,
				Pending:   s.pending,
				Permanent: s.permanent,
				Active:    s.active,
			})
		}
	}
	return report
}

func (d *simDevice) after(fn func()) {
	go func() {
		time.Sleep(d.latency)
		fn()
	}()
}

// --- transport.Transport -----------------------------------------------

func (d *simDevice) Connect() transport.ConnectResult {
	return transport.ConnectResult{Outcome: transport.OutcomeConnected}
}

func (d *simDevice) AddObserver(o transport.Observer) {
	d.mu.Lock()
	d.observer = o
	d.mu.Unlock()
}

func (d *simDevice) RemoveObserver(o transport.Observer) {
	d.mu.Lock()
	if d.observer == o {
		d.observer = nil
	}
	d.mu.Unlock()
}

func (d *simDevice) notify(state transport.ConnState) {
	d.mu.Lock()
	o := d.observer
	d.mu.Unlock()
	if o != nil {
		o.DidChangeStateTo(state)
	}
}

// --- mgmtclient.ImageClient ---------------------------------------------

func (d *simDevice) List(cb func(*mgmtclient.ImageListResponse, error)) {
	d.after(func() {
		cb(&mgmtclient.ImageListResponse{Slots: d.snapshot()}, nil)
	})
}

func (d *simDevice) Upload(images []mgmtclient.UploadImage, cfg mgmtclient.UploadConfig, delegate mgmtclient.UploadDelegate) mgmtclient.UploadHandle {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, img := range images {
			size := uint64(len(img.Data))
			const chunk = 4096
			var sent uint64
			for sent < size {
				time.Sleep(d.latency)
				step := uint64(chunk)
				if sent+step > size {
					step = size - sent
				}
				sent += step
				delegate.OnProgress(mgmtclient.ProgressEvent{
					ImageIndex: img.Index,
					BytesSent:  sent,
					ImageSize:  size,
					Timestamp:  time.Now(),
				})
			}
			hash, _ := imagehash.DefaultParser{}.Parse(img.Data)
			d.mu.Lock()
			pair := d.slots[img.Index]
			pair[1] = &simSlot{hash: hash}
			d.slots[img.Index] = pair
			d.mu.Unlock()
		}
		time.Sleep(d.latency)
		delegate.OnFinish()
	}()
	return &simUploadHandle{done: done}
}

func (d *simDevice) CancelUpload()   {}
func (d *simDevice) PauseUpload()    {}
func (d *simDevice) ContinueUpload() {}

func (d *simDevice) Test(hash []byte, cb func(*mgmtclient.ImageListResponse, error)) {
	d.after(func() {
		d.mu.Lock()
		for index, pair := range d.slots {
			if pair[1] != nil && bytes.Equal(pair[1].hash, hash) {
				pair[1].pending = true
				d.slots[index] = pair
			}
		}
		d.mu.Unlock()
		cb(&mgmtclient.ImageListResponse{Slots: d.snapshot()}, nil)
	})
}

func (d *simDevice) Confirm(hash []byte, cb func(*mgmtclient.ImageListResponse, error)) {
	d.after(func() {
		d.mu.Lock()
		for index, pair := range d.slots {
			if hash == nil {
				if pair[0] != nil {
					pair[0].confirmed = true
					pair[0].permanent = true
					d.slots[index] = pair
				}
				continue
			}
			if pair[0] != nil && bytes.Equal(pair[0].hash, hash) {
				pair[0].confirmed = true
				pair[0].permanent = true
				d.slots[index] = pair
			}
			if pair[1] != nil && bytes.Equal(pair[1].hash, hash) {
				pair[1].permanent = true
				d.slots[index] = pair
			}
		}
		d.mu.Unlock()
		cb(&mgmtclient.ImageListResponse{Slots: d.snapshot()}, nil)
	})
}

func (d *simDevice) SetMtu(mtu int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mtu = mtu
	return true
}

// --- mgmtclient.DefaultClient --------------------------------------------

func (d *simDevice) Params(cb func(*mgmtclient.ParamsResponse, error)) {
	d.after(func() {
		cb(&mgmtclient.ParamsResponse{ReassemblyBufferSize: 2048}, nil)
	})
}

func (d *simDevice) Reset(cb func(mgmtclient.Response, error)) {
	d.after(func() {
		d.mu.Lock()
		d.resetCount++
		for index, pair := range d.slots {
			if pair[1] != nil && (pair[1].pending || pair[1].permanent) {
				pair[0], pair[1] = pair[1], nil
				pair[0].active = true
				d.slots[index] = pair
			}
		}
		d.mu.Unlock()
		cb(mgmtclient.BaseResponse{}, nil)
		go func() {
			time.Sleep(d.latency)
			d.notify(transport.Disconnected)
			time.Sleep(d.latency)
			d.notify(transport.Connected)
		}()
	})
}

// --- mgmtclient.BasicClient ---------------------------------------------

func (d *simDevice) EraseAppSettings(cb func(mgmtclient.Response, error)) {
	d.after(func() {
		cb(mgmtclient.BaseResponse{}, nil)
	})
}

type simUploadHandle struct {
	done chan struct{}
}

func (h *simUploadHandle) Done() <-chan struct{} { return h.done }
