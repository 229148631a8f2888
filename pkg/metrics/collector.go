// Copyright (c) 2026 Keypo Labs
//
// This file is part of keypo-keyring.
//
// keypo-keyring is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@keypo.io for commercial licensing options.

package metrics

import (
	"context"
	"runtime"
	"time"
)

// ResourceCollector periodically collects and updates resource metrics such
// as goroutine count, memory usage, and server uptime. An optional challenge
// counter callback keeps the pending-challenge gauge current.
type ResourceCollector struct {
	ctx        context.Context
	cancel     context.CancelFunc
	interval   time.Duration
	started    time.Time
	challenges func() int // optional
}

// NewResourceCollector creates a new resource collector that updates metrics
// at the specified interval.
//
// Example:
//
//	collector := metrics.NewResourceCollector(ctx, 30*time.Second)
//	go collector.Start()
//	defer collector.Stop()
func NewResourceCollector(ctx context.Context, interval time.Duration) *ResourceCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &ResourceCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		started:  time.Now(),
	}
}

// TrackChallenges registers a callback that reports the number of outstanding
// ceremony challenges. Must be called before Start.
func (rc *ResourceCollector) TrackChallenges(fn func() int) {
	rc.challenges = fn
}

// Start begins collecting resource metrics at the configured interval.
// This method blocks and should typically be run in a goroutine. It continues
// until Stop is called or the parent context is cancelled.
func (rc *ResourceCollector) Start() {
	ticker := time.NewTicker(rc.interval)
	defer ticker.Stop()

	rc.collect()

	for {
		select {
		case <-rc.ctx.Done():
			return
		case <-ticker.C:
			rc.collect()
		}
	}
}

// Stop halts the resource collector gracefully.
func (rc *ResourceCollector) Stop() {
	rc.cancel()
}

// collect gathers and updates all resource metrics.
func (rc *ResourceCollector) collect() {
	if !IsEnabled() {
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	Goroutines.Set(float64(runtime.NumGoroutine()))
	MemoryAllocBytes.Set(float64(memStats.Alloc))
	MemorySysBytes.Set(float64(memStats.Sys))
	ServerUptime.Set(time.Since(rc.started).Seconds())

	if rc.challenges != nil {
		SetPendingChallenges(rc.challenges())
	}
}
