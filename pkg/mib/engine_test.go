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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

type fakeLister struct {
	devices []models.Device
	rev     uint64
}

func (f *fakeLister) List() []models.Device { return f.devices }
func (f *fakeLister) Rev() uint64           { return f.rev }

type fakeStore struct {
	snapshots map[int]*models.Snapshot
	rev       uint64
}

func (f *fakeStore) Get(deviceID int) (*models.Snapshot, bool) {
	s, ok := f.snapshots[deviceID]
	return s, ok
}

func (f *fakeStore) Len() int    { return len(f.snapshots) }
func (f *fakeStore) Rev() uint64 { return f.rev }

func testSnapshot(deviceID int) *models.Snapshot {
	plugged := true

	return &models.Snapshot{
		DeviceID:      deviceID,
		CollectedAt:   time.Now(),
		UptimeSeconds: 3600,
		CPU: models.CPUMetrics{
			UsagePercent: 42.5,
			CoreCount:    8,
			ThreadCount:  16,
			FrequencyMHz: 3200,
			TemperatureC: 55,
			Load1:        1.5,
			Load5:        1.25,
			Load15:       0.9,
			Model:        "Test CPU",
		},
		Memory: models.MemoryMetrics{
			TotalBytes:     16 << 30,
			UsedBytes:      8 << 30,
			AvailableBytes: 8 << 30,
			UsagePercent:   50,
		},
		Storage: []models.StorageDevice{
			{
				Name:         "/dev/sda1",
				SubIndex:     1,
				MountPoint:   "/",
				FSType:       "ext4",
				TotalBytes:   500 << 30,
				UsedBytes:    200 << 30,
				UsagePercent: 40,
			},
		},
		Network: []models.NetworkInterface{
			{
				Name:      "eth0",
				SubIndex:  1,
				IPv4:      "10.0.0.1",
				MAC:       "aa:bb:cc:dd:ee:01",
				BytesSent: 1 << 20,
				BytesRecv: 2 << 20,
			},
		},
		Power: models.PowerMetrics{
			CPUWatts:       15.5,
			BatteryPercent: 80,
			PluggedIn:      &plugged,
		},
	}
}

func newTestEngine(t *testing.T, devices []models.Device, snaps map[int]*models.Snapshot) *Engine {
	t.Helper()

	lister := &fakeLister{devices: devices, rev: 1}
	store := &fakeStore{snapshots: snaps, rev: 1}

	return NewEngine(lister, store, "1.2.3", logger.NewTestLogger())
}

func onlineDevice(id int, ip string) models.Device {
	return models.Device{
		ID:       id,
		IP:       ip,
		Hostname: "host-" + ip,
		OSType:   "linux",
		Status:   models.StatusOnline,
		LastSeen: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
}

func TestEngineGeneration_TotalOrder(t *testing.T) {
	devices := []models.Device{
		onlineDevice(1, "10.0.0.1"),
		onlineDevice(2, "10.0.0.2"),
		onlineDevice(3, "10.0.0.3"),
	}
	snaps := map[int]*models.Snapshot{
		1: testSnapshot(1),
		2: testSnapshot(2),
		3: testSnapshot(3),
	}

	e := newTestEngine(t, devices, snaps)

	prev, err := e.GetNext(OID{0})
	require.NoError(t, err)

	count := 1

	for {
		next, err := e.GetNext(prev.OID)
		if err != nil {
			require.ErrorIs(t, err, ErrEndOfMIB)
			break
		}

		require.Equal(t, 1, next.OID.Cmp(prev.OID),
			"walk must be strictly increasing: %s then %s", prev.OID, next.OID)

		prev = next
		count++
	}

	assert.Equal(t, e.Len(), count, "walk must visit every entry exactly once")
}

func TestEngineGet(t *testing.T) {
	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	entry, err := e.Get(oidAgentVersion)
	require.NoError(t, err)
	assert.Equal(t, TypeOctetString, entry.Type)
	assert.Equal(t, "1.2.3", entry.Value)

	entry, err = e.Get(oidMachineCount)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Value)

	entry, err = e.Get(oidMachineEntry.Append(colMachineIP, 1))
	require.NoError(t, err)
	assert.Equal(t, TypeIPAddress, entry.Type)
	assert.Equal(t, "10.0.0.1", entry.Value)

	_, err = e.Get(OIDRoot.Append(9, 9, 9))
	assert.ErrorIs(t, err, ErrNoSuchObject)
}

func TestEngineGetNext_MissingInput(t *testing.T) {
	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	// The query OID need not exist; the successor is still well defined.
	probe := oidAgentVersion.Append(5)

	_, err := e.Get(probe)
	require.ErrorIs(t, err, ErrNoSuchObject)

	next, err := e.GetNext(probe)
	require.NoError(t, err)
	assert.Equal(t, oidAgentUptime, next.OID)
}

func TestEngineGetNext_PastEnd(t *testing.T) {
	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	_, err := e.GetNext(OID{2})
	assert.ErrorIs(t, err, ErrEndOfMIB)
}

func TestEngineGetBulk(t *testing.T) {
	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	total := e.Len()

	got := e.GetBulk(OID{0}, 5)
	require.Len(t, got, 5)

	for i := 1; i < len(got); i++ {
		assert.Equal(t, 1, got[i].OID.Cmp(got[i-1].OID))
	}

	// More than remaining stops at the end instead of padding.
	got = e.GetBulk(OID{0}, total+100)
	assert.Len(t, got, total)

	assert.Nil(t, e.GetBulk(OID{2}, 10))
	assert.Nil(t, e.GetBulk(OID{0}, 0))
}

func TestEngineSkipsDevicesWithoutSnapshot(t *testing.T) {
	devices := []models.Device{
		onlineDevice(1, "10.0.0.1"),
		onlineDevice(2, "10.0.0.2"),
	}
	snaps := map[int]*models.Snapshot{1: testSnapshot(1)}

	e := newTestEngine(t, devices, snaps)

	_, err := e.Get(oidMachineEntry.Append(colMachineIndex, 1))
	require.NoError(t, err)

	_, err = e.Get(oidMachineEntry.Append(colMachineIndex, 2))
	assert.ErrorIs(t, err, ErrNoSuchObject)
}

func TestEngineOfflineDeviceKeepsRows(t *testing.T) {
	dev := onlineDevice(1, "10.0.0.1")
	dev.Status = models.StatusOffline

	e := newTestEngine(t,
		[]models.Device{dev},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	entry, err := e.Get(oidMachineEntry.Append(colMachineStatus, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Value)

	// The stale metrics stay served.
	entry, err = e.Get(oidCPUEntry.Append(colCPUModel, 1))
	require.NoError(t, err)
	assert.Equal(t, "Test CPU", entry.Value)
}

func TestEngineValueEncoding(t *testing.T) {
	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	tests := []struct {
		name string
		oid  OID
		typ  ValueType
		want interface{}
	}{
		{"machine uptime in centiseconds", oidMachineEntry.Append(colMachineUptime, 1), TypeTimeTicks, uint32(360000)},
		{"machine last seen RFC3339", oidMachineEntry.Append(colMachineLastSeen, 1), TypeOctetString, "2026-08-23T10:00:00Z"},
		{"load as two-decimal string", oidCPUEntry.Append(colCPULoad1m, 1), TypeOctetString, "1.50"},
		{"cpu usage truncated to int", oidCPUEntry.Append(colCPUUsagePercent, 1), TypeInteger, 42},
		{"memory total as counter64", oidMemoryEntry.Append(colMemTotalBytes, 1), TypeCounter64, uint64(16 << 30)},
		{"storage composite index", oidStorageEntry.Append(colStorageIndex, 1, 1), TypeOctetString, "1.1"},
		{"storage free derived", oidStorageEntry.Append(colStorageFreeBytes, 1, 1), TypeCounter64, uint64(300 << 30)},
		{"cpu watts in centiwatts", oidPowerEntry.Append(colPowerCPUWatts, 1), TypeInteger, 1550},
		{"plugged in flag", oidPowerEntry.Append(colPowerPluggedIn, 1), TypeInteger, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := e.Get(tt.oid)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, entry.Type)
			assert.Equal(t, tt.want, entry.Value)
		})
	}
}

func TestEngineNetworkTable(t *testing.T) {
	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: testSnapshot(1)})

	tests := []struct {
		name string
		oid  OID
		typ  ValueType
		want interface{}
	}{
		{"network composite index", oidNetworkEntry.Append(colNetIndex, 1, 1), TypeOctetString, "1.1"},
		{"network machine index", oidNetworkEntry.Append(colNetMachineIndex, 1, 1), TypeInteger, 1},
		{"interface name", oidNetworkEntry.Append(colNetName, 1, 1), TypeOctetString, "eth0"},
		{"interface ipv4", oidNetworkEntry.Append(colNetIPAddress, 1, 1), TypeOctetString, "10.0.0.1"},
		{"interface mac", oidNetworkEntry.Append(colNetMACAddress, 1, 1), TypeOctetString, "aa:bb:cc:dd:ee:01"},
		{"bytes sent as counter64", oidNetworkEntry.Append(colNetBytesSent, 1, 1), TypeCounter64, uint64(1 << 20)},
		{"bytes received as counter64", oidNetworkEntry.Append(colNetBytesRecv, 1, 1), TypeCounter64, uint64(2 << 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := e.Get(tt.oid)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, entry.Type)
			assert.Equal(t, tt.want, entry.Value)
		})
	}
}

func TestEngineNoInterfacesNoNetworkRows(t *testing.T) {
	snap := testSnapshot(1)
	snap.Network = nil

	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: snap})

	_, err := e.Get(oidNetworkEntry.Append(colNetIndex, 1, 1))
	assert.ErrorIs(t, err, ErrNoSuchObject)
}

func TestEngineUnknownPowerState(t *testing.T) {
	snap := testSnapshot(1)
	snap.Power.PluggedIn = nil

	e := newTestEngine(t,
		[]models.Device{onlineDevice(1, "10.0.0.1")},
		map[int]*models.Snapshot{1: snap})

	entry, err := e.Get(oidPowerEntry.Append(colPowerPluggedIn, 1))
	require.NoError(t, err)
	assert.Equal(t, -1, entry.Value)
}

func TestEngineRebuildOnRevChange(t *testing.T) {
	lister := &fakeLister{devices: []models.Device{onlineDevice(1, "10.0.0.1")}, rev: 1}
	store := &fakeStore{snapshots: map[int]*models.Snapshot{1: testSnapshot(1)}, rev: 1}

	e := NewEngine(lister, store, "1.2.3", logger.NewTestLogger())

	_, err := e.Get(oidMachineEntry.Append(colMachineIndex, 2))
	require.ErrorIs(t, err, ErrNoSuchObject)

	lister.devices = append(lister.devices, onlineDevice(2, "10.0.0.2"))
	store.snapshots[2] = testSnapshot(2)
	lister.rev++
	store.rev++

	e.maybeRebuild()

	entry, err := e.Get(oidMachineEntry.Append(colMachineIndex, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Value)
}

func TestEngineRowIndexFollowsDeviceID(t *testing.T) {
	// Device 2 gone from the registry list must not shift device 3's rows.
	devices := []models.Device{
		onlineDevice(1, "10.0.0.1"),
		onlineDevice(3, "10.0.0.3"),
	}
	snaps := map[int]*models.Snapshot{
		1: testSnapshot(1),
		3: testSnapshot(3),
	}

	e := newTestEngine(t, devices, snaps)

	entry, err := e.Get(oidMachineEntry.Append(colMachineIP, 3))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.3", entry.Value)

	_, err = e.Get(oidMachineEntry.Append(colMachineIP, 2))
	assert.ErrorIs(t, err, ErrNoSuchObject)
}
