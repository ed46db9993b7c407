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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

// Standard MIB objects queried on remote agents.
const (
	oidSysUptime = ".1.3.6.1.2.1.1.3.0"
	oidSysName   = ".1.3.6.1.2.1.1.5.0"
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0"

	oidLoad1  = ".1.3.6.1.4.1.2021.10.1.3.1"
	oidLoad5  = ".1.3.6.1.4.1.2021.10.1.3.2"
	oidLoad15 = ".1.3.6.1.4.1.2021.10.1.3.3"

	// UCD memory objects report kilobytes.
	oidMemTotalSwap = ".1.3.6.1.4.1.2021.4.3.0"
	oidMemAvailSwap = ".1.3.6.1.4.1.2021.4.4.0"
	oidMemTotalReal = ".1.3.6.1.4.1.2021.4.5.0"
	oidMemAvailReal = ".1.3.6.1.4.1.2021.4.6.0"

	oidHrProcessorLoad = ".1.3.6.1.2.1.25.3.3.1.2"

	oidHrStorageType  = ".1.3.6.1.2.1.25.2.3.1.2"
	oidHrStorageDescr = ".1.3.6.1.2.1.25.2.3.1.3"
	oidHrStorageUnits = ".1.3.6.1.2.1.25.2.3.1.4"
	oidHrStorageSize  = ".1.3.6.1.2.1.25.2.3.1.5"
	oidHrStorageUsed  = ".1.3.6.1.2.1.25.2.3.1.6"

	hrStorageFixedDisk = "1.3.6.1.2.1.25.2.1.4"

	oidIfDescr        = ".1.3.6.1.2.1.2.2.1.2"
	oidIfPhysAddress  = ".1.3.6.1.2.1.2.2.1.6"
	oidIfInOctets     = ".1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets    = ".1.3.6.1.2.1.2.2.1.16"
	oidIPAdEntIfIndex = ".1.3.6.1.2.1.4.20.1.2"

	snmpCollectRetries = 1
	snmpWalkMaxReps    = 20
)

// SNMPCollector queries remote devices that run a standard SNMP agent,
// combining SNMPv2-MIB, UCD-SNMP-MIB and HOST-RESOURCES-MIB objects.
type SNMPCollector struct {
	community string
	port      uint16
	timeout   time.Duration
	logger    logger.Logger
}

func NewSNMPCollector(community string, port uint16, timeout time.Duration, log logger.Logger) *SNMPCollector {
	return &SNMPCollector{
		community: community,
		port:      port,
		timeout:   timeout,
		logger:    log,
	}
}

func (c *SNMPCollector) Kind() models.CollectorKind {
	return models.CollectorSNMP
}

func (c *SNMPCollector) Collect(ctx context.Context, device models.Device) (*models.Snapshot, error) {
	client := &gosnmp.GoSNMP{
		Target:         device.IP,
		Port:           c.port,
		Community:      c.community,
		Version:        gosnmp.Version2c,
		Timeout:        c.timeout,
		Retries:        snmpCollectRetries,
		MaxRepetitions: snmpWalkMaxReps,
		Context:        ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, device.IP, err)
	}
	defer client.Conn.Close()

	snapshot := &models.Snapshot{
		DeviceID:    device.ID,
		CollectedAt: time.Now(),
	}

	if err := c.collectScalars(client, snapshot); err != nil {
		return nil, err
	}

	c.collectProcessors(client, snapshot)
	c.collectStorage(client, snapshot)
	c.collectInterfaces(client, snapshot)

	if err := ctx.Err(); err != nil {
		return nil, ErrTimeout
	}

	return snapshot, nil
}

// collectScalars fetches the scalar objects in one request. A device that
// cannot answer any of them is treated as failed; individual missing
// objects (no UCD agent, say) are tolerated.
func (c *SNMPCollector) collectScalars(client *gosnmp.GoSNMP, snapshot *models.Snapshot) error {
	oids := []string{
		oidSysUptime,
		oidLoad1, oidLoad5, oidLoad15,
		oidMemTotalReal, oidMemAvailReal,
		oidMemTotalSwap, oidMemAvailSwap,
	}

	result, err := client.Get(oids)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	var memTotalKB, memAvailKB, swapTotalKB, swapAvailKB uint64

	for _, pdu := range result.Variables {
		if pdu.Type == gosnmp.NoSuchObject || pdu.Type == gosnmp.NoSuchInstance || pdu.Type == gosnmp.Null {
			continue
		}

		switch normalizeOID(pdu.Name) {
		case oidSysUptime:
			snapshot.UptimeSeconds = int64(gosnmp.ToBigInt(pdu.Value).Uint64() / 100)
		case oidLoad1:
			snapshot.CPU.Load1 = parseLoad(pdu)
		case oidLoad5:
			snapshot.CPU.Load5 = parseLoad(pdu)
		case oidLoad15:
			snapshot.CPU.Load15 = parseLoad(pdu)
		case oidMemTotalReal:
			memTotalKB = gosnmp.ToBigInt(pdu.Value).Uint64()
		case oidMemAvailReal:
			memAvailKB = gosnmp.ToBigInt(pdu.Value).Uint64()
		case oidMemTotalSwap:
			swapTotalKB = gosnmp.ToBigInt(pdu.Value).Uint64()
		case oidMemAvailSwap:
			swapAvailKB = gosnmp.ToBigInt(pdu.Value).Uint64()
		}
	}

	snapshot.Memory = memoryFromKB(memTotalKB, memAvailKB, swapTotalKB, swapAvailKB)

	return nil
}

// memoryFromKB converts UCD kilobyte readings to the byte-based model.
func memoryFromKB(totalKB, availKB, swapTotalKB, swapAvailKB uint64) models.MemoryMetrics {
	m := models.MemoryMetrics{
		TotalBytes:     totalKB * 1024,
		AvailableBytes: availKB * 1024,
		SwapTotalBytes: swapTotalKB * 1024,
	}

	if totalKB >= availKB {
		m.UsedBytes = (totalKB - availKB) * 1024
	}

	if swapTotalKB >= swapAvailKB {
		m.SwapUsedBytes = (swapTotalKB - swapAvailKB) * 1024
	}

	if m.TotalBytes > 0 {
		m.UsagePercent = float64(m.UsedBytes) / float64(m.TotalBytes) * 100
	}

	return m
}

// collectProcessors walks hrProcessorLoad; the core count is the row count
// and the usage is the average across cores.
func (c *SNMPCollector) collectProcessors(client *gosnmp.GoSNMP, snapshot *models.Snapshot) {
	pdus, err := client.BulkWalkAll(oidHrProcessorLoad)
	if err != nil || len(pdus) == 0 {
		return
	}

	var total int64
	for _, pdu := range pdus {
		total += gosnmp.ToBigInt(pdu.Value).Int64()
	}

	snapshot.CPU.CoreCount = len(pdus)
	snapshot.CPU.ThreadCount = len(pdus)
	snapshot.CPU.UsagePercent = float64(total) / float64(len(pdus))
}

// collectStorage walks the hrStorage table and keeps fixed-disk rows.
func (c *SNMPCollector) collectStorage(client *gosnmp.GoSNMP, snapshot *models.Snapshot) {
	type row struct {
		typ   string
		descr string
		units uint64
		size  uint64
		used  uint64
	}

	rows := make(map[string]*row)

	get := func(index string) *row {
		r, ok := rows[index]
		if !ok {
			r = &row{}
			rows[index] = r
		}

		return r
	}

	walk := func(base string, apply func(r *row, pdu gosnmp.SnmpPDU)) {
		pdus, err := client.BulkWalkAll(base)
		if err != nil {
			return
		}

		for _, pdu := range pdus {
			index := strings.TrimPrefix(normalizeOID(pdu.Name), base+".")
			apply(get(index), pdu)
		}
	}

	walk(oidHrStorageType, func(r *row, pdu gosnmp.SnmpPDU) {
		if s, ok := pdu.Value.(string); ok {
			r.typ = strings.TrimPrefix(s, ".")
		}
	})
	walk(oidHrStorageDescr, func(r *row, pdu gosnmp.SnmpPDU) {
		r.descr = pduString(pdu)
	})
	walk(oidHrStorageUnits, func(r *row, pdu gosnmp.SnmpPDU) {
		r.units = gosnmp.ToBigInt(pdu.Value).Uint64()
	})
	walk(oidHrStorageSize, func(r *row, pdu gosnmp.SnmpPDU) {
		r.size = gosnmp.ToBigInt(pdu.Value).Uint64()
	})
	walk(oidHrStorageUsed, func(r *row, pdu gosnmp.SnmpPDU) {
		r.used = gosnmp.ToBigInt(pdu.Value).Uint64()
	})

	for _, r := range rows {
		if r.typ != hrStorageFixedDisk || r.units == 0 || r.size == 0 {
			continue
		}

		total := r.size * r.units
		used := r.used * r.units

		snapshot.Storage = append(snapshot.Storage, models.StorageDevice{
			Name:         r.descr,
			MountPoint:   r.descr,
			FSType:       "unknown",
			TotalBytes:   total,
			UsedBytes:    used,
			UsagePercent: float64(used) / float64(total) * 100,
		})
	}
}

// collectInterfaces walks the ifTable and joins it with the IPv4 address
// table. The loopback interface is skipped.
func (c *SNMPCollector) collectInterfaces(client *gosnmp.GoSNMP, snapshot *models.Snapshot) {
	type row struct {
		descr string
		mac   string
		in    uint64
		out   uint64
		ipv4  string
	}

	rows := make(map[string]*row)

	get := func(index string) *row {
		r, ok := rows[index]
		if !ok {
			r = &row{}
			rows[index] = r
		}

		return r
	}

	walk := func(base string, apply func(r *row, pdu gosnmp.SnmpPDU)) {
		pdus, err := client.BulkWalkAll(base)
		if err != nil {
			return
		}

		for _, pdu := range pdus {
			index := strings.TrimPrefix(normalizeOID(pdu.Name), base+".")
			apply(get(index), pdu)
		}
	}

	walk(oidIfDescr, func(r *row, pdu gosnmp.SnmpPDU) {
		r.descr = pduString(pdu)
	})
	walk(oidIfPhysAddress, func(r *row, pdu gosnmp.SnmpPDU) {
		r.mac = formatMAC(pdu)
	})
	walk(oidIfInOctets, func(r *row, pdu gosnmp.SnmpPDU) {
		r.in = gosnmp.ToBigInt(pdu.Value).Uint64()
	})
	walk(oidIfOutOctets, func(r *row, pdu gosnmp.SnmpPDU) {
		r.out = gosnmp.ToBigInt(pdu.Value).Uint64()
	})

	// ipAdEntIfIndex rows are keyed by the address and valued with the
	// interface index, so the join runs backwards.
	if pdus, err := client.BulkWalkAll(oidIPAdEntIfIndex); err == nil {
		for _, pdu := range pdus {
			addr := strings.TrimPrefix(normalizeOID(pdu.Name), oidIPAdEntIfIndex+".")
			index := gosnmp.ToBigInt(pdu.Value).String()

			if r, ok := rows[index]; ok && r.ipv4 == "" {
				r.ipv4 = addr
			}
		}
	}

	for _, r := range rows {
		if r.descr == "" || r.descr == "lo" {
			continue
		}

		snapshot.Network = append(snapshot.Network, models.NetworkInterface{
			Name:      r.descr,
			IPv4:      r.ipv4,
			MAC:       r.mac,
			BytesSent: r.out,
			BytesRecv: r.in,
		})
	}
}

// formatMAC renders an ifPhysAddress octet string as colon-separated hex.
func formatMAC(pdu gosnmp.SnmpPDU) string {
	b, ok := pdu.Value.([]byte)
	if !ok || len(b) == 0 {
		return ""
	}

	parts := make([]string, len(b))
	for i, octet := range b {
		parts[i] = fmt.Sprintf("%02x", octet)
	}

	return strings.Join(parts, ":")
}

// Probe checks whether a host answers SNMP at all with a single sysName
// request. Used by the capability selector.
func (c *SNMPCollector) Probe(ctx context.Context, ip string) bool {
	client := &gosnmp.GoSNMP{
		Target:    ip,
		Port:      c.port,
		Community: c.community,
		Version:   gosnmp.Version2c,
		Timeout:   c.timeout,
		Retries:   0,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return false
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysName})

	return err == nil && len(result.Variables) > 0 &&
		result.Variables[0].Type != gosnmp.NoSuchObject
}

func parseLoad(pdu gosnmp.SnmpPDU) float64 {
	v, err := strconv.ParseFloat(pduString(pdu), 64)
	if err != nil {
		return 0
	}

	return v
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func normalizeOID(oid string) string {
	if !strings.HasPrefix(oid, ".") {
		return "." + oid
	}

	return oid
}

func isTimeout(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
