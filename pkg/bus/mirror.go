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

// Package bus mirrors the cached metrics onto NATS for consumers that
// prefer a message stream over SNMP polling. The mirror is read-only: it
// never feeds anything back into the registry or cache.
package bus

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coldfell/hwagent/pkg/cache"
	"github.com/coldfell/hwagent/pkg/config"
	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
	"github.com/coldfell/hwagent/pkg/registry"
)

// Publisher is the subset of nats.Conn the mirror uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// DeviceEvent is the per-device payload published on
// <prefix>.device.<id>.
type DeviceEvent struct {
	Device           models.Device    `json:"device"`
	Snapshot         *models.Snapshot `json:"snapshot,omitempty"`
	StalenessSeconds float64          `json:"staleness_seconds"`
	PublishedAt      time.Time        `json:"published_at"`
}

// SummaryEvent is the fleet payload published on <prefix>.summary.
type SummaryEvent struct {
	Devices     int       `json:"devices"`
	Online      int       `json:"online"`
	Offline     int       `json:"offline"`
	WithMetrics int       `json:"with_metrics"`
	PublishedAt time.Time `json:"published_at"`
}

// Mirror periodically publishes the registry and cache state to NATS.
type Mirror struct {
	cfg      *config.NATSConfig
	registry *registry.Registry
	cache    *cache.Cache
	logger   logger.Logger

	// conn is injected in tests; Start dials when it is nil.
	conn   Publisher
	closer func()
}

func NewMirror(cfg *config.NATSConfig, reg *registry.Registry, c *cache.Cache, log logger.Logger) *Mirror {
	return &Mirror{
		cfg:      cfg,
		registry: reg,
		cache:    c,
		logger:   log,
	}
}

// Start connects to NATS and publishes one round per interval until the
// context is canceled.
func (m *Mirror) Start(ctx context.Context) error {
	if m.conn == nil {
		nc, err := nats.Connect(m.cfg.URL,
			nats.Name("hwagent"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return err
		}

		m.conn = nc
		m.closer = nc.Close
	}

	if m.closer != nil {
		defer m.closer()
	}

	interval := time.Duration(m.cfg.Interval)

	m.logger.Info().
		Str("url", m.cfg.URL).
		Str("subject_prefix", m.cfg.SubjectPrefix).
		Dur("interval", interval).
		Msg("starting bus mirror")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.publishRound()
		}
	}
}

// publishRound publishes one event per device plus the fleet summary.
// Publish failures are logged and skipped; the next round retries.
func (m *Mirror) publishRound() {
	now := time.Now()
	summary := SummaryEvent{PublishedAt: now}

	for _, dev := range m.registry.List() {
		summary.Devices++

		switch dev.Status {
		case models.StatusOnline:
			summary.Online++
		case models.StatusOffline:
			summary.Offline++
		}

		event := DeviceEvent{Device: dev, PublishedAt: now}

		if snap, ok := m.cache.Get(dev.ID); ok {
			summary.WithMetrics++
			event.Snapshot = snap

			if staleness, ok := m.cache.Staleness(dev.ID); ok {
				event.StalenessSeconds = staleness.Seconds()
			}
		}

		m.publish(deviceSubject(m.cfg.SubjectPrefix, dev.ID), event)
	}

	m.publish(m.cfg.SubjectPrefix+".summary", summary)
}

func (m *Mirror) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error().Err(err).Str("subject", subject).Msg("failed to marshal bus event")
		return
	}

	if err := m.conn.Publish(subject, data); err != nil {
		m.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish bus event")
	}
}

func deviceSubject(prefix string, deviceID int) string {
	return prefix + ".device." + strconv.Itoa(deviceID)
}
