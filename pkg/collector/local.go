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

package collector

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

const (
	cpuSampleInterval = 500 * time.Millisecond

	powerSupplyPath = "/sys/class/power_supply"
	raplEnergyPath  = "/sys/class/powercap/intel-rapl:0/energy_uj"
)

// LocalCollector reads metrics for the host the agent runs on.
type LocalCollector struct {
	logger logger.Logger

	// RAPL exposes a cumulative energy counter; wattage is derived from
	// the delta between successive collections.
	raplMu     sync.Mutex
	lastEnergy uint64
	lastSample time.Time
}

func NewLocalCollector(log logger.Logger) *LocalCollector {
	return &LocalCollector{logger: log}
}

func (c *LocalCollector) Kind() models.CollectorKind {
	return models.CollectorLocal
}

func (c *LocalCollector) Collect(ctx context.Context, device models.Device) (*models.Snapshot, error) {
	snapshot := &models.Snapshot{
		DeviceID:    device.ID,
		CollectedAt: time.Now(),
	}

	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		snapshot.UptimeSeconds = int64(uptime)
	}

	c.collectCPU(ctx, snapshot)
	c.collectMemory(ctx, snapshot)
	c.collectStorage(ctx, snapshot)
	c.collectNetwork(ctx, snapshot)
	c.collectPower(snapshot)

	if err := ctx.Err(); err != nil {
		return nil, ErrTimeout
	}

	return snapshot, nil
}

func (c *LocalCollector) collectCPU(ctx context.Context, snapshot *models.Snapshot) {
	if percents, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false); err == nil && len(percents) > 0 {
		snapshot.CPU.UsagePercent = percents[0]
	} else if err != nil {
		c.logger.Debug().Err(err).Msg("cpu usage unavailable")
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		snapshot.CPU.Model = infos[0].ModelName
		snapshot.CPU.FrequencyMHz = infos[0].Mhz
	}

	if cores, err := cpu.CountsWithContext(ctx, false); err == nil {
		snapshot.CPU.CoreCount = cores
	}

	if threads, err := cpu.CountsWithContext(ctx, true); err == nil {
		snapshot.CPU.ThreadCount = threads
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snapshot.CPU.Load1 = avg.Load1
		snapshot.CPU.Load5 = avg.Load5
		snapshot.CPU.Load15 = avg.Load15
	}

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err == nil {
		for _, t := range temps {
			key := strings.ToLower(t.SensorKey)
			if strings.Contains(key, "coretemp") || strings.Contains(key, "k10temp") ||
				strings.Contains(key, "cpu") || strings.Contains(key, "package") {
				snapshot.CPU.TemperatureC = t.Temperature
				break
			}
		}
	}
}

func (c *LocalCollector) collectMemory(ctx context.Context, snapshot *models.Snapshot) {
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot.Memory.TotalBytes = vm.Total
		snapshot.Memory.UsedBytes = vm.Used
		snapshot.Memory.AvailableBytes = vm.Available
		snapshot.Memory.UsagePercent = vm.UsedPercent
	} else {
		c.logger.Debug().Err(err).Msg("virtual memory unavailable")
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		snapshot.Memory.SwapTotalBytes = swap.Total
		snapshot.Memory.SwapUsedBytes = swap.Used
	}
}

func (c *LocalCollector) collectStorage(ctx context.Context, snapshot *models.Snapshot) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		c.logger.Debug().Err(err).Msg("disk partitions unavailable")
		return
	}

	for _, part := range partitions {
		if skipFilesystem(part.Fstype) {
			continue
		}

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}

		snapshot.Storage = append(snapshot.Storage, models.StorageDevice{
			Name:         part.Device,
			MountPoint:   part.Mountpoint,
			FSType:       part.Fstype,
			TotalBytes:   usage.Total,
			UsedBytes:    usage.Used,
			UsagePercent: usage.UsedPercent,
			IsSSD:        isRotationalFalse(part.Device),
		})
	}
}

// collectNetwork pairs per-NIC IO counters with interface addresses. The
// loopback interface is skipped.
func (c *LocalCollector) collectNetwork(ctx context.Context, snapshot *models.Snapshot) {
	ifaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("network interfaces unavailable")
		return
	}

	counters := make(map[string]gnet.IOCountersStat)

	if stats, err := gnet.IOCountersWithContext(ctx, true); err == nil {
		for _, s := range stats {
			counters[s.Name] = s
		}
	}

	for _, iface := range ifaces {
		if iface.Name == "lo" {
			continue
		}

		nic := models.NetworkInterface{
			Name: iface.Name,
			MAC:  iface.HardwareAddr,
			IPv4: firstIPv4(iface.Addrs),
		}

		if s, ok := counters[iface.Name]; ok {
			nic.BytesSent = s.BytesSent
			nic.BytesRecv = s.BytesRecv
		}

		snapshot.Network = append(snapshot.Network, nic)
	}
}

// firstIPv4 picks the first IPv4 address out of CIDR-formatted interface
// addresses like "192.168.1.5/24".
func firstIPv4(addrs []gnet.InterfaceAddr) string {
	for _, addr := range addrs {
		host := addr.Addr
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}

		if strings.Contains(host, ".") && !strings.Contains(host, ":") {
			return host
		}
	}

	return ""
}

func skipFilesystem(fstype string) bool {
	switch fstype {
	case "tmpfs", "devtmpfs", "squashfs", "overlay", "proc", "sysfs", "cgroup", "cgroup2":
		return true
	default:
		return false
	}
}

// isRotationalFalse checks the block layer's rotational flag for a device
// like /dev/sda1. Unknown devices report false.
func isRotationalFalse(device string) bool {
	base := filepath.Base(device)
	base = strings.TrimRightFunc(base, func(r rune) bool { return r >= '0' && r <= '9' })

	if strings.HasPrefix(base, "nvme") {
		return true
	}

	data, err := os.ReadFile(filepath.Join("/sys/block", base, "queue/rotational"))
	if err != nil {
		return false
	}

	return strings.TrimSpace(string(data)) == "0"
}

func (c *LocalCollector) collectPower(snapshot *models.Snapshot) {
	snapshot.Power.BatteryPercent, snapshot.Power.PluggedIn = readBattery(powerSupplyPath)
	snapshot.Power.CPUWatts = c.sampleRAPL()
}

// readBattery scans the power-supply class for the first battery and the AC
// line state. Hosts without a battery report 0% and an unknown plug state.
func readBattery(dir string) (float64, *bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil
	}

	var (
		percent float64
		plugged *bool
	)

	for _, entry := range entries {
		supply := filepath.Join(dir, entry.Name())

		typ, err := os.ReadFile(filepath.Join(supply, "type"))
		if err != nil {
			continue
		}

		switch strings.TrimSpace(string(typ)) {
		case "Battery":
			if data, err := os.ReadFile(filepath.Join(supply, "capacity")); err == nil {
				if v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64); err == nil {
					percent = v
				}
			}
		case "Mains":
			if data, err := os.ReadFile(filepath.Join(supply, "online")); err == nil {
				online := strings.TrimSpace(string(data)) == "1"
				plugged = &online
			}
		}
	}

	return percent, plugged
}

// sampleRAPL derives package wattage from the cumulative RAPL energy
// counter. The first call after startup (and any counter wrap) reports 0.
func (c *LocalCollector) sampleRAPL() float64 {
	data, err := os.ReadFile(raplEnergyPath)
	if err != nil {
		return 0
	}

	energy, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0
	}

	now := time.Now()

	c.raplMu.Lock()
	defer c.raplMu.Unlock()

	prevEnergy, prevSample := c.lastEnergy, c.lastSample
	c.lastEnergy, c.lastSample = energy, now

	if prevSample.IsZero() || energy < prevEnergy {
		return 0
	}

	elapsed := now.Sub(prevSample).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(energy-prevEnergy) / 1e6 / elapsed
}
