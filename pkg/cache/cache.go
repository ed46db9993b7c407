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

// Package cache holds the latest successful snapshot per device.
//
// The orchestrator is the single writer; everything downstream reads.
// Snapshots are replaced wholesale, never mutated in place, so a reader can
// never observe a torn reading.
package cache

import (
	"sync"
	"time"

	"github.com/coldfell/hwagent/pkg/models"
)

// Cache stores the last known snapshot per device with staleness tracking.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[int]*models.Snapshot
	rev       uint64

	// Sub-index assignment must survive set churn: a disk or NIC that
	// disappears and comes back under the same name reuses its old
	// sub-index, and sub-indices are never recycled for the process
	// lifetime. Storage and network number independently.
	storageSub subAllocator
	networkSub subAllocator

	now func() time.Time
}

func New() *Cache {
	return &Cache{
		snapshots:  make(map[int]*models.Snapshot),
		storageSub: newSubAllocator(),
		networkSub: newSubAllocator(),
		now:        time.Now,
	}
}

// Set atomically replaces the device's snapshot. Storage devices and
// network interfaces get their stable sub-indices assigned here,
// regardless of enumeration order.
func (c *Cache) Set(snapshot *models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range snapshot.Storage {
		snapshot.Storage[i].SubIndex = c.storageSub.assign(snapshot.DeviceID, snapshot.Storage[i].Name)
	}

	for i := range snapshot.Network {
		snapshot.Network[i].SubIndex = c.networkSub.assign(snapshot.DeviceID, snapshot.Network[i].Name)
	}

	c.snapshots[snapshot.DeviceID] = snapshot
	c.rev++
}

// Get returns the last known snapshot for a device, if any. The returned
// snapshot must be treated as immutable.
func (c *Cache) Get(deviceID int) (*models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshots[deviceID]

	return s, ok
}

// Staleness reports how long ago the device's snapshot was collected.
// Staleness is advisory: the data stays served however old it gets.
func (c *Cache) Staleness(deviceID int) (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.snapshots[deviceID]
	if !ok {
		return 0, false
	}

	return c.now().Sub(s.CollectedAt), true
}

// Len returns the number of devices with a cached snapshot.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.snapshots)
}

// Rev returns a counter bumped on every write.
func (c *Cache) Rev() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.rev
}

// subAllocator hands out stable sub-indices per (device, name). The cache
// lock guards all access.
type subAllocator struct {
	names map[int]map[string]int
	next  map[int]int
}

func newSubAllocator() subAllocator {
	return subAllocator{
		names: make(map[int]map[string]int),
		next:  make(map[int]int),
	}
}

// assign returns the sub-index for (device, name), handing out the next
// unused one on first observation.
func (a *subAllocator) assign(deviceID int, name string) int {
	names, ok := a.names[deviceID]
	if !ok {
		names = make(map[string]int)
		a.names[deviceID] = names
		a.next[deviceID] = 1
	}

	if idx, ok := names[name]; ok {
		return idx
	}

	idx := a.next[deviceID]
	a.next[deviceID]++
	names[name] = idx

	return idx
}
