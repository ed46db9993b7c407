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

package mib

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

var (
	// ErrNoSuchObject reports an exact lookup miss. Normal control flow,
	// not a failure.
	ErrNoSuchObject = errors.New("no such object")

	// ErrEndOfMIB reports that no identifier greater than the query exists.
	ErrEndOfMIB = errors.New("end of MIB view")
)

// ValueType tags the wire type of an entry's value.
type ValueType int

const (
	TypeInteger ValueType = iota
	TypeOctetString
	TypeIPAddress
	TypeTimeTicks
	TypeGauge32
	TypeCounter64
)

// Entry is one value in the identifier space.
type Entry struct {
	OID   OID
	Type  ValueType
	Value interface{}
}

// DeviceLister is the read-only registry surface the engine consumes.
type DeviceLister interface {
	List() []models.Device
	Rev() uint64
}

// SnapshotStore is the read-only cache surface the engine consumes.
type SnapshotStore interface {
	Get(deviceID int) (*models.Snapshot, bool)
	Len() int
	Rev() uint64
}

const (
	defaultRefreshInterval = 5 * time.Second

	// Even with no registry or cache churn the generation is rebuilt at
	// this interval so agentUptime keeps moving.
	maxGenerationAge = 30 * time.Second
)

// Engine deterministically projects {registry, cache} into a sorted
// identifier space. Lookups read the current generation through an atomic
// pointer and never block; rebuilds install a complete new generation in
// one swap, so a walk in progress always sees one consistent generation.
type Engine struct {
	devices   DeviceLister
	snapshots SnapshotStore
	version   string
	startedAt time.Time
	logger    logger.Logger

	gen atomic.Pointer[generation]

	rebuildMu    sync.Mutex
	builtDevRev  uint64
	builtSnapRev uint64
	builtAt      time.Time

	refreshInterval time.Duration
	now             func() time.Time
}

type generation struct {
	entries []Entry
}

func NewEngine(devices DeviceLister, snapshots SnapshotStore, version string, log logger.Logger) *Engine {
	e := &Engine{
		devices:         devices,
		snapshots:       snapshots,
		version:         version,
		startedAt:       time.Now(),
		logger:          log,
		refreshInterval: defaultRefreshInterval,
		now:             time.Now,
	}

	e.gen.Store(&generation{})
	e.Rebuild()

	return e
}

// Start runs the refresher until the context is canceled. The refresher
// swaps in a new generation whenever the registry or cache has changed.
func (e *Engine) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()

	e.logger.Info().Dur("interval", e.refreshInterval).Msg("starting MIB refresher")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.maybeRebuild()
		}
	}
}

func (e *Engine) maybeRebuild() {
	e.rebuildMu.Lock()
	stale := e.devices.Rev() != e.builtDevRev ||
		e.snapshots.Rev() != e.builtSnapRev ||
		e.now().Sub(e.builtAt) > maxGenerationAge
	e.rebuildMu.Unlock()

	if stale {
		e.Rebuild()
	}
}

// Rebuild constructs a fresh generation and installs it atomically.
func (e *Engine) Rebuild() {
	e.rebuildMu.Lock()
	defer e.rebuildMu.Unlock()

	devRev := e.devices.Rev()
	snapRev := e.snapshots.Rev()

	entries := e.build()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OID.Cmp(entries[j].OID) < 0
	})

	e.gen.Store(&generation{entries: entries})
	e.builtDevRev = devRev
	e.builtSnapRev = snapRev
	e.builtAt = e.now()

	e.logger.Debug().Int("entries", len(entries)).Msg("installed new MIB generation")
}

// Get returns the entry for an exact identifier, or ErrNoSuchObject.
func (e *Engine) Get(oid OID) (Entry, error) {
	entries := e.gen.Load().entries

	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].OID.Cmp(oid) >= 0
	})

	if i < len(entries) && entries[i].OID.Cmp(oid) == 0 {
		return entries[i], nil
	}

	return Entry{}, ErrNoSuchObject
}

// GetNext returns the entry with the smallest identifier strictly greater
// than oid, or ErrEndOfMIB. The input does not need to exist.
func (e *Engine) GetNext(oid OID) (Entry, error) {
	entries := e.gen.Load().entries

	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].OID.Cmp(oid) > 0
	})

	if i < len(entries) {
		return entries[i], nil
	}

	return Entry{}, ErrEndOfMIB
}

// GetBulk returns up to max successive GetNext results starting after oid.
// It stops early at the end of the identifier space. All results come from
// the same generation.
func (e *Engine) GetBulk(oid OID, max int) []Entry {
	entries := e.gen.Load().entries

	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].OID.Cmp(oid) > 0
	})

	if i >= len(entries) || max <= 0 {
		return nil
	}

	end := i + max
	if end > len(entries) {
		end = len(entries)
	}

	out := make([]Entry, end-i)
	copy(out, entries[i:end])

	return out
}

// Len returns the number of entries in the current generation.
func (e *Engine) Len() int {
	return len(e.gen.Load().entries)
}

// build produces all entries for the current registry and cache state. A
// device without a cached snapshot contributes nothing: walks skip it
// rather than surfacing placeholder rows.
func (e *Engine) build() []Entry {
	devices := e.devices.List()

	entries := make([]Entry, 0, 3+len(devices)*32)

	uptimeTicks := uint32(e.now().Sub(e.startedAt) / (10 * time.Millisecond))

	entries = append(entries,
		Entry{OID: oidAgentVersion, Type: TypeOctetString, Value: e.version},
		Entry{OID: oidAgentUptime, Type: TypeTimeTicks, Value: uptimeTicks},
		Entry{OID: oidMachineCount, Type: TypeInteger, Value: e.snapshots.Len()},
	)

	for i := range devices {
		dev := &devices[i]

		snap, ok := e.snapshots.Get(dev.ID)
		if !ok {
			continue
		}

		entries = append(entries, machineEntries(dev, snap)...)
		entries = append(entries, cpuEntries(dev.ID, &snap.CPU)...)
		entries = append(entries, memoryEntries(dev.ID, &snap.Memory)...)
		entries = append(entries, storageEntries(dev.ID, snap.Storage)...)
		entries = append(entries, powerEntries(dev.ID, &snap.Power)...)
		entries = append(entries, networkEntries(dev.ID, snap.Network)...)
	}

	return entries
}

func machineEntries(dev *models.Device, snap *models.Snapshot) []Entry {
	id := uint32(dev.ID)

	return []Entry{
		{OID: oidMachineEntry.Append(colMachineIndex, id), Type: TypeInteger, Value: dev.ID},
		{OID: oidMachineEntry.Append(colMachineIP, id), Type: TypeIPAddress, Value: dev.IP},
		{OID: oidMachineEntry.Append(colMachineHostname, id), Type: TypeOctetString, Value: dev.Hostname},
		{OID: oidMachineEntry.Append(colMachineOSType, id), Type: TypeOctetString, Value: dev.OSType},
		{OID: oidMachineEntry.Append(colMachineUptime, id), Type: TypeTimeTicks, Value: uptimeToTicks(snap.UptimeSeconds)},
		{OID: oidMachineEntry.Append(colMachineStatus, id), Type: TypeInteger, Value: int(dev.Status)},
		{OID: oidMachineEntry.Append(colMachineLastSeen, id), Type: TypeOctetString, Value: dev.LastSeen.UTC().Format(time.RFC3339)},
	}
}

func cpuEntries(deviceID int, cpu *models.CPUMetrics) []Entry {
	id := uint32(deviceID)

	return []Entry{
		{OID: oidCPUEntry.Append(colCPUIndex, id), Type: TypeInteger, Value: deviceID},
		{OID: oidCPUEntry.Append(colCPUUsagePercent, id), Type: TypeInteger, Value: int(cpu.UsagePercent)},
		{OID: oidCPUEntry.Append(colCPUCoreCount, id), Type: TypeInteger, Value: cpu.CoreCount},
		{OID: oidCPUEntry.Append(colCPUThreadCount, id), Type: TypeInteger, Value: cpu.ThreadCount},
		{OID: oidCPUEntry.Append(colCPUFrequencyMHz, id), Type: TypeInteger, Value: int(cpu.FrequencyMHz)},
		{OID: oidCPUEntry.Append(colCPUTemperature, id), Type: TypeInteger, Value: int(cpu.TemperatureC)},
		{OID: oidCPUEntry.Append(colCPULoad1m, id), Type: TypeOctetString, Value: formatLoad(cpu.Load1)},
		{OID: oidCPUEntry.Append(colCPULoad5m, id), Type: TypeOctetString, Value: formatLoad(cpu.Load5)},
		{OID: oidCPUEntry.Append(colCPULoad15m, id), Type: TypeOctetString, Value: formatLoad(cpu.Load15)},
		{OID: oidCPUEntry.Append(colCPUModel, id), Type: TypeOctetString, Value: cpu.Model},
	}
}

func memoryEntries(deviceID int, mem *models.MemoryMetrics) []Entry {
	id := uint32(deviceID)

	return []Entry{
		{OID: oidMemoryEntry.Append(colMemIndex, id), Type: TypeInteger, Value: deviceID},
		{OID: oidMemoryEntry.Append(colMemTotalBytes, id), Type: TypeCounter64, Value: mem.TotalBytes},
		{OID: oidMemoryEntry.Append(colMemUsedBytes, id), Type: TypeCounter64, Value: mem.UsedBytes},
		{OID: oidMemoryEntry.Append(colMemAvailableBytes, id), Type: TypeCounter64, Value: mem.AvailableBytes},
		{OID: oidMemoryEntry.Append(colMemUsagePercent, id), Type: TypeInteger, Value: int(mem.UsagePercent)},
		{OID: oidMemoryEntry.Append(colMemSwapTotalBytes, id), Type: TypeCounter64, Value: mem.SwapTotalBytes},
		{OID: oidMemoryEntry.Append(colMemSwapUsedBytes, id), Type: TypeCounter64, Value: mem.SwapUsedBytes},
	}
}

func storageEntries(deviceID int, storage []models.StorageDevice) []Entry {
	id := uint32(deviceID)
	entries := make([]Entry, 0, len(storage)*9)

	for i := range storage {
		sd := &storage[i]
		sub := uint32(sd.SubIndex)

		entries = append(entries,
			Entry{OID: oidStorageEntry.Append(colStorageIndex, id, sub), Type: TypeOctetString, Value: fmt.Sprintf("%d.%d", deviceID, sd.SubIndex)},
			Entry{OID: oidStorageEntry.Append(colStorageMachineIndex, id, sub), Type: TypeInteger, Value: deviceID},
			Entry{OID: oidStorageEntry.Append(colStorageDevice, id, sub), Type: TypeOctetString, Value: sd.Name},
			Entry{OID: oidStorageEntry.Append(colStorageMountPoint, id, sub), Type: TypeOctetString, Value: sd.MountPoint},
			Entry{OID: oidStorageEntry.Append(colStorageFSType, id, sub), Type: TypeOctetString, Value: sd.FSType},
			Entry{OID: oidStorageEntry.Append(colStorageTotalBytes, id, sub), Type: TypeCounter64, Value: sd.TotalBytes},
			Entry{OID: oidStorageEntry.Append(colStorageUsedBytes, id, sub), Type: TypeCounter64, Value: sd.UsedBytes},
			Entry{OID: oidStorageEntry.Append(colStorageFreeBytes, id, sub), Type: TypeCounter64, Value: sd.FreeBytes()},
			Entry{OID: oidStorageEntry.Append(colStorageUsagePercent, id, sub), Type: TypeInteger, Value: int(sd.UsagePercent)},
		)
	}

	return entries
}

func powerEntries(deviceID int, power *models.PowerMetrics) []Entry {
	id := uint32(deviceID)

	plugged := -1
	if power.PluggedIn != nil {
		if *power.PluggedIn {
			plugged = 1
		} else {
			plugged = 0
		}
	}

	return []Entry{
		{OID: oidPowerEntry.Append(colPowerIndex, id), Type: TypeInteger, Value: deviceID},
		{OID: oidPowerEntry.Append(colPowerCPUWatts, id), Type: TypeInteger, Value: int(power.CPUWatts * 100)},
		{OID: oidPowerEntry.Append(colPowerBatteryPercent, id), Type: TypeInteger, Value: int(power.BatteryPercent)},
		{OID: oidPowerEntry.Append(colPowerPluggedIn, id), Type: TypeInteger, Value: plugged},
	}
}

func networkEntries(deviceID int, network []models.NetworkInterface) []Entry {
	id := uint32(deviceID)
	entries := make([]Entry, 0, len(network)*7)

	for i := range network {
		nic := &network[i]
		sub := uint32(nic.SubIndex)

		entries = append(entries,
			Entry{OID: oidNetworkEntry.Append(colNetIndex, id, sub), Type: TypeOctetString, Value: fmt.Sprintf("%d.%d", deviceID, nic.SubIndex)},
			Entry{OID: oidNetworkEntry.Append(colNetMachineIndex, id, sub), Type: TypeInteger, Value: deviceID},
			Entry{OID: oidNetworkEntry.Append(colNetName, id, sub), Type: TypeOctetString, Value: nic.Name},
			Entry{OID: oidNetworkEntry.Append(colNetIPAddress, id, sub), Type: TypeOctetString, Value: nic.IPv4},
			Entry{OID: oidNetworkEntry.Append(colNetMACAddress, id, sub), Type: TypeOctetString, Value: nic.MAC},
			Entry{OID: oidNetworkEntry.Append(colNetBytesSent, id, sub), Type: TypeCounter64, Value: nic.BytesSent},
			Entry{OID: oidNetworkEntry.Append(colNetBytesRecv, id, sub), Type: TypeCounter64, Value: nic.BytesRecv},
		)
	}

	return entries
}

func uptimeToTicks(seconds int64) uint32 {
	ticks := seconds * 100
	if ticks < 0 || ticks > int64(^uint32(0)) {
		return ^uint32(0)
	}

	return uint32(ticks)
}

func formatLoad(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
