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

package models

import "time"

// Snapshot is one complete reading of a device's hardware metrics. A
// snapshot is replaced wholesale on each successful collection and must
// never be partially updated in place.
type Snapshot struct {
	DeviceID      int                `json:"device_id"`
	CollectedAt   time.Time          `json:"collected_at"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	CPU           CPUMetrics         `json:"cpu"`
	Memory        MemoryMetrics      `json:"memory"`
	Storage       []StorageDevice    `json:"storage"`
	Network       []NetworkInterface `json:"network,omitempty"`
	Power         PowerMetrics       `json:"power"`
}

type CPUMetrics struct {
	UsagePercent float64 `json:"usage_percent"`
	CoreCount    int     `json:"core_count"`
	ThreadCount  int     `json:"thread_count"`
	FrequencyMHz float64 `json:"frequency_mhz"`
	TemperatureC float64 `json:"temperature_c,omitempty"`
	Load1        float64 `json:"load_1m"`
	Load5        float64 `json:"load_5m"`
	Load15       float64 `json:"load_15m"`
	Model        string  `json:"model,omitempty"`
}

type MemoryMetrics struct {
	TotalBytes     uint64  `json:"total_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsagePercent   float64 `json:"usage_percent"`
	SwapTotalBytes uint64  `json:"swap_total_bytes,omitempty"`
	SwapUsedBytes  uint64  `json:"swap_used_bytes,omitempty"`
}

// StorageDevice is one filesystem or disk on a device. SubIndex is assigned
// by the cache on first observation of (device, Name) and stays stable for
// the process lifetime, surviving storage-set churn.
type StorageDevice struct {
	Name         string  `json:"name"`
	SubIndex     int     `json:"sub_index"`
	MountPoint   string  `json:"mount_point,omitempty"`
	FSType       string  `json:"fs_type,omitempty"`
	TotalBytes   uint64  `json:"total_bytes"`
	UsedBytes    uint64  `json:"used_bytes"`
	UsagePercent float64 `json:"usage_percent"`
	IsSSD        bool    `json:"is_ssd,omitempty"`
}

// NetworkInterface is one NIC on a device. SubIndex follows the same
// cache-assigned stability rule as StorageDevice.SubIndex.
type NetworkInterface struct {
	Name      string `json:"name"`
	SubIndex  int    `json:"sub_index"`
	IPv4      string `json:"ipv4,omitempty"`
	MAC       string `json:"mac,omitempty"`
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// PowerMetrics carries power readings. PluggedIn is nil when the device has
// no battery or the collector could not tell; the wire encoding is -1.
type PowerMetrics struct {
	CPUWatts       float64 `json:"cpu_watts,omitempty"`
	BatteryPercent float64 `json:"battery_percent,omitempty"`
	PluggedIn      *bool   `json:"plugged_in,omitempty"`
}

func (s *StorageDevice) FreeBytes() uint64 {
	if s.UsedBytes > s.TotalBytes {
		return 0
	}

	return s.TotalBytes - s.UsedBytes
}
