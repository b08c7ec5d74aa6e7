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

// Package main is the entry point of fuoctl, a demonstration CLI that
// drives a UpgradeStateMachine end to end against an in-memory simulated
// device, for exercising the orchestrator without real transport/command
// client implementations (both out of scope per this repository's core).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/log"

	"github.com/skylineiot/fuo/internal/pkg/imagehash"
	"github.com/skylineiot/fuo/internal/pkg/mgmtclient"
	"github.com/skylineiot/fuo/internal/pkg/upgrade"
)

type cliFlags struct {
	images           string
	mode             string
	eraseAppSettings bool
	pipelineDepth    int
	mtu              int
	swapTime         time.Duration
	logLevel         string
}

func parseFlags() *cliFlags {
	cf := &cliFlags{}
	flag.StringVar(&cf.images, "images", "", "comma-separated list of index:path firmware image pairs, e.g. 0:app.bin,1:net.bin")
	flag.StringVar(&cf.mode, "mode", "ConfirmOnly", "upgrade mode: TestOnly, ConfirmOnly or TestAndConfirm")
	flag.BoolVar(&cf.eraseAppSettings, "erase-app-settings", true, "issue erase-app-settings before test/confirm")
	flag.IntVar(&cf.pipelineDepth, "pipeline-depth", 1, "number of unacknowledged upload chunks in flight")
	flag.IntVar(&cf.mtu, "mtu", 0, "upload MTU override, 0 leaves the client default")
	flag.DurationVar(&cf.swapTime, "swap-time", 2*time.Second, "estimated device swap time after reset")
	flag.StringVar(&cf.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()
	return cf
}

func parseMode(s string) (upgrade.Mode, error) {
	switch s {
	case "TestOnly":
		return upgrade.TestOnly, nil
	case "ConfirmOnly":
		return upgrade.ConfirmOnly, nil
	case "TestAndConfirm":
		return upgrade.TestAndConfirm, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func loadImages(spec string) ([]mgmtclient.UploadImage, error) {
	if spec == "" {
		return nil, fmt.Errorf("-images is required")
	}
	var out []mgmtclient.UploadImage
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed image entry %q, want index:path", pair)
		}
		var index uint8
		if _, err := fmt.Sscanf(parts[0], "%d", &index); err != nil {
			return nil, fmt.Errorf("malformed image index %q: %w", parts[0], err)
		}
		data, err := os.ReadFile(parts[1])
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", parts[1], err)
		}
		out = append(out, mgmtclient.UploadImage{Index: index, Data: data})
	}
	return out, nil
}

// cliDelegate prints the lifecycle of one upgrade to stdout and signals
// done once a terminal event fires.
type cliDelegate struct {
	done chan error
}

func newCliDelegate() *cliDelegate {
	return &cliDelegate{done: make(chan error, 1)}
}

func (d *cliDelegate) UpgradeDidStart() {
	fmt.Println("upgrade started")
}

func (d *cliDelegate) UpgradeStateDidChange(state upgrade.State) {
	fmt.Printf("state -> %s\n", state)
}

func (d *cliDelegate) UploadProgressDidChange(ev mgmtclient.ProgressEvent) {
	fmt.Printf("  image %d: %d/%d bytes\n", ev.ImageIndex, ev.BytesSent, ev.ImageSize)
}

func (d *cliDelegate) UpgradeDidComplete() {
	fmt.Println("upgrade complete")
	d.done <- nil
}

func (d *cliDelegate) UpgradeDidFail(state upgrade.State, err error) {
	fmt.Printf("upgrade failed in state %s: %v\n", state, err)
	d.done <- err
}

func (d *cliDelegate) UpgradeDidCancel(state upgrade.State) {
	fmt.Println("upgrade canceled")
	d.done <- fmt.Errorf("canceled")
}

func setupLogging(levelName string) error {
	level, err := log.StringToLogLevel(levelName)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	if _, err := log.SetDefaultLogger(log.JSON, level, log.Fields{"instanceId": "fuoctl"}); err != nil {
		return fmt.Errorf("cannot setup logging: %w", err)
	}
	if err := log.UpdateAllLoggers(log.Fields{"instanceId": "fuoctl"}); err != nil {
		return fmt.Errorf("cannot update loggers: %w", err)
	}
	log.SetAllLogLevel(level)
	return nil
}

func waitForInterrupt(cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
}

func run() error {
	cf := parseFlags()
	if err := setupLogging(cf.logLevel); err != nil {
		return err
	}

	images, err := loadImages(cf.images)
	if err != nil {
		return err
	}
	mode, err := parseMode(cf.mode)
	if err != nil {
		return err
	}

	device := newSimDevice(20 * time.Millisecond)
	for _, img := range images {
		device.seedPrimary(img.Index)
	}

	delegate := newCliDelegate()
	machine := upgrade.NewUpgradeStateMachine("fuoctl-1", device, device, device, device, imagehash.DefaultParser{}, delegate)
	machine.SetMode(mode)
	machine.SetEstimatedSwapTime(cf.swapTime)
	if cf.mtu != 0 && !machine.SetUploadMtu(cf.mtu) {
		return fmt.Errorf("mtu %d out of range [%d, %d]", cf.mtu, upgrade.MinMtu, upgrade.MaxMtu)
	}

	config := upgrade.DefaultConfiguration()
	config.EraseAppSettings = cf.eraseAppSettings
	config.PipelineDepth = cf.pipelineDepth

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	waitForInterrupt(cancel)

	if err := machine.Start(ctx, images, config); err != nil {
		return err
	}

	select {
	case err := <-delegate.done:
		return err
	case <-ctx.Done():
		machine.Cancel()
		return ctx.Err()
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fuoctl:", err)
		os.Exit(1)
	}
}
