/*
 * Copyright 2026 Coldfell Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package poller orchestrates metric collection across all registered
// devices.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldfell/hwagent/pkg/cache"
	"github.com/coldfell/hwagent/pkg/collector"
	"github.com/coldfell/hwagent/pkg/config"
	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
	"github.com/coldfell/hwagent/pkg/registry"
)

// Poller drives one collection round per interval. Rounds never overlap on
// the same device: a device still being collected when its next tick
// arrives skips that tick, so one hung target can never pile up goroutines
// or stall the other devices.
type Poller struct {
	cfg      *config.CollectionConfig
	selector *collector.Selector
	registry *registry.Registry
	cache    *cache.Cache
	logger   logger.Logger

	// Global bound on concurrent collections across all devices.
	sem chan struct{}

	// Per-device in-flight flags.
	inFlight sync.Map // int -> *atomic.Bool

	wg sync.WaitGroup
}

func New(cfg *config.CollectionConfig, sel *collector.Selector, reg *registry.Registry, c *cache.Cache, log logger.Logger) *Poller {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 10
	}

	return &Poller{
		cfg:      cfg,
		selector: sel,
		registry: reg,
		cache:    c,
		logger:   log,
		sem:      make(chan struct{}, workers),
	}
}

// Start polls immediately and then once per interval until the context is
// canceled. It waits for in-flight collections before returning.
func (p *Poller) Start(ctx context.Context) error {
	interval := time.Duration(p.cfg.Interval)

	p.logger.Info().
		Dur("interval", interval).
		Int("workers", cap(p.sem)).
		Msg("starting collection poller")

	p.pollAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

// pollAll starts a collection for every registered device not already in
// flight. It returns without waiting for them.
func (p *Poller) pollAll(ctx context.Context) {
	for _, dev := range p.registry.List() {
		dev := dev

		flag := p.flagFor(dev.ID)
		if !flag.CompareAndSwap(false, true) {
			p.logger.Debug().
				Int("device_id", dev.ID).
				Str("ip", dev.IP).
				Msg("collection still in flight, skipping tick")

			continue
		}

		p.wg.Add(1)

		go func() {
			defer p.wg.Done()
			defer flag.Store(false)

			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-ctx.Done():
				return
			}

			p.collect(ctx, dev)
		}()
	}
}

// collect runs one collection cycle for a device: strategy selection, then
// up to 1+retries attempts, each under its own deadline. Success refreshes
// the cache and the device's liveness; exhausting the attempts records a
// missed cycle.
func (p *Poller) collect(ctx context.Context, dev models.Device) {
	col, kind, err := p.selector.Select(ctx, dev)
	if err != nil {
		if errors.Is(err, collector.ErrNoCollector) {
			p.logger.Debug().Str("ip", dev.IP).Msg("no collection strategy for device")
			return
		}

		p.logger.Warn().Err(err).Str("ip", dev.IP).Msg("collector selection failed")

		return
	}

	if dev.Collector != kind {
		p.registry.SetCollector(dev.IP, kind)
	}

	attempts := p.cfg.Retries + 1

	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		snapshot, err := p.collectOnce(ctx, col, dev)
		if err == nil {
			p.cache.Set(snapshot)
			p.registry.RecordSeen(dev.IP, snapshot.CollectedAt)

			p.logger.Debug().
				Int("device_id", dev.ID).
				Str("ip", dev.IP).
				Str("collector", string(kind)).
				Msg("collected snapshot")

			return
		}

		lastErr = err
	}

	p.registry.RecordMiss(dev.IP)

	p.logger.Warn().
		Err(lastErr).
		Int("device_id", dev.ID).
		Str("ip", dev.IP).
		Str("collector", string(kind)).
		Int("attempts", attempts).
		Msg("collection failed")
}

func (p *Poller) collectOnce(ctx context.Context, col collector.Collector, dev models.Device) (*models.Snapshot, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Timeout))
	defer cancel()

	return col.Collect(attemptCtx, dev)
}

func (p *Poller) flagFor(deviceID int) *atomic.Bool {
	v, _ := p.inFlight.LoadOrStore(deviceID, &atomic.Bool{})
	return v.(*atomic.Bool)
}
