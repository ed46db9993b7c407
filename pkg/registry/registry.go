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

// Package registry tracks the canonical set of known devices.
//
// Device IDs are assigned monotonically on first registration of an IP and
// are immutable for the process lifetime. This is the property the query
// engine's row indices are built on: re-discovery must never move a row.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

const defaultMissThreshold = 3

// Registry is the single source of truth for device identity. Discovery is
// the only writer of identity facts; the orchestrator writes status.
type Registry struct {
	mu            sync.RWMutex
	byIP          map[string]*models.Device
	byID          map[int]*models.Device
	misses        map[string]int
	nextID        int
	missThreshold int
	rev           uint64
	logger        logger.Logger
}

func New(missThreshold int, log logger.Logger) *Registry {
	if missThreshold <= 0 {
		missThreshold = defaultMissThreshold
	}

	return &Registry{
		byIP:          make(map[string]*models.Device),
		byID:          make(map[int]*models.Device),
		misses:        make(map[string]int),
		nextID:        1,
		missThreshold: missThreshold,
		logger:        log,
	}
}

// Upsert merges identity facts for an IP, creating the device on first
// sight. It is idempotent: applying the same facts twice never changes the
// device ID or duplicates a row. Empty or "unknown" fact values never
// overwrite existing state.
func (r *Registry) Upsert(ip string, facts models.DeviceFacts) models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.byIP[ip]
	if !ok {
		dev = &models.Device{
			ID:     r.assignID(),
			IP:     ip,
			Status: models.StatusUnknown,
		}
		r.byIP[ip] = dev
		r.byID[dev.ID] = dev

		r.logger.Info().Str("ip", ip).Int("device_id", dev.ID).Msg("registered new device")
	}

	merge(dev, facts)

	if !facts.SeenAt.IsZero() {
		dev.LastSeen = facts.SeenAt
		dev.Status = models.StatusOnline
		r.misses[ip] = 0
	}

	r.rev++

	return *dev
}

func merge(dev *models.Device, facts models.DeviceFacts) {
	if meaningful(facts.Hostname) {
		dev.Hostname = facts.Hostname
	}

	if facts.MAC != "" {
		dev.MAC = facts.MAC
	}

	if meaningful(facts.Vendor) {
		dev.Vendor = facts.Vendor
	}

	if meaningful(facts.OSType) {
		dev.OSType = facts.OSType
	}

	if facts.Method != "" {
		dev.DiscoveryMethod = facts.Method
	}

	if facts.Collector != models.CollectorNone {
		dev.Collector = facts.Collector
	}
}

func meaningful(v string) bool {
	return v != "" && v != "unknown" && v != "Unknown"
}

// Get returns the device registered for an IP.
func (r *Registry) Get(ip string) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.byIP[ip]
	if !ok {
		return models.Device{}, false
	}

	return *dev, true
}

// GetByID returns the device with the given stable ID.
func (r *Registry) GetByID(id int) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.byID[id]
	if !ok {
		return models.Device{}, false
	}

	return *dev, true
}

// List returns a point-in-time copy of all devices, sorted by ID.
func (r *Registry) List() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Device, 0, len(r.byID))
	for _, dev := range r.byID {
		out = append(out, *dev)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// MarkStale sets a device Offline immediately. The ID is retained; the
// device keeps its rows in the identifier space flagged as offline.
func (r *Registry) MarkStale(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.byIP[ip]
	if !ok {
		return
	}

	if dev.Status != models.StatusOffline {
		dev.Status = models.StatusOffline
		r.rev++

		r.logger.Info().Str("ip", ip).Int("device_id", dev.ID).Msg("device marked offline")
	}
}

// RecordMiss counts a missed discovery or collection cycle. Once the
// configured threshold of consecutive misses is reached the device goes
// Offline (keeping its ID).
func (r *Registry) RecordMiss(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.byIP[ip]
	if !ok {
		return
	}

	r.misses[ip]++

	if r.misses[ip] >= r.missThreshold && dev.Status != models.StatusOffline {
		dev.Status = models.StatusOffline
		r.rev++

		r.logger.Warn().
			Str("ip", ip).
			Int("device_id", dev.ID).
			Int("missed_cycles", r.misses[ip]).
			Msg("device offline after missed cycles")
	}
}

// RecordSeen resets the miss counter and marks the device Online.
func (r *Registry) RecordSeen(ip string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.byIP[ip]
	if !ok {
		return
	}

	r.misses[ip] = 0
	dev.LastSeen = at

	if dev.Status != models.StatusOnline {
		dev.Status = models.StatusOnline
		r.rev++

		return
	}

	r.rev++
}

// SetCollector memoizes the capability-probe result for a device.
func (r *Registry) SetCollector(ip string, kind models.CollectorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dev, ok := r.byIP[ip]; ok && dev.Collector != kind {
		dev.Collector = kind
		r.rev++
	}
}

// Rev returns a counter bumped on every mutation; the query engine uses it
// to decide when a rebuild is due.
func (r *Registry) Rev() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.rev
}

// assignID hands out the next device ID. Callers hold the write lock.
func (r *Registry) assignID() int {
	id := r.nextID
	r.nextID++

	return id
}
