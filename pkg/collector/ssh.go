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
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

// SSHCollectorConfig carries the credentials for the SSH strategy.
type SSHCollectorConfig struct {
	Username string
	Password string
	KeyPath  string
	Port     int
	Timeout  time.Duration
}

// SSHCollector gathers metrics from Linux hosts over SSH by reading proc
// files and standard tools. It is the fallback for hosts without an SNMP
// agent.
type SSHCollector struct {
	config SSHCollectorConfig
	logger logger.Logger
}

func NewSSHCollector(config SSHCollectorConfig, log logger.Logger) *SSHCollector {
	return &SSHCollector{config: config, logger: log}
}

func (c *SSHCollector) Kind() models.CollectorKind {
	return models.CollectorSSH
}

func (c *SSHCollector) Collect(ctx context.Context, device models.Device) (*models.Snapshot, error) {
	client, err := c.dial(ctx, device.IP)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	snapshot := &models.Snapshot{
		DeviceID:    device.ID,
		CollectedAt: time.Now(),
	}

	if out, err := runCommand(client, "cat /proc/uptime"); err == nil {
		snapshot.UptimeSeconds = parseUptime(out)
	}

	if out, err := runCommand(client, "cat /proc/loadavg"); err == nil {
		snapshot.CPU.Load1, snapshot.CPU.Load5, snapshot.CPU.Load15 = parseLoadAvg(out)
	}

	if out, err := runCommand(client, "nproc"); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(out)); err == nil {
			snapshot.CPU.CoreCount = n
			snapshot.CPU.ThreadCount = n
		}
	}

	if out, err := runCommand(client, "cat /proc/meminfo"); err == nil {
		snapshot.Memory = parseMeminfo(out)
	}

	if out, err := runCommand(client, "df -P -B1"); err == nil {
		snapshot.Storage = parseDF(out)
	}

	if out, err := runCommand(client, "cat /proc/net/dev"); err == nil {
		snapshot.Network = parseNetDev(out)
	}

	if err := ctx.Err(); err != nil {
		return nil, ErrTimeout
	}

	return snapshot, nil
}

// Probe reports whether the host accepts our SSH credentials.
func (c *SSHCollector) Probe(ctx context.Context, ip string) bool {
	client, err := c.dial(ctx, ip)
	if err != nil {
		return false
	}

	client.Close()

	return true
}

// dial opens an authenticated SSH connection honoring the context deadline.
// ssh.Dial cannot take a context, so the TCP connect and handshake are done
// separately.
func (c *SSHCollector) dial(ctx context.Context, ip string) (*ssh.Client, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            c.config.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // hosts are discovered dynamically
		Timeout:         c.config.Timeout,
	}

	addr := net.JoinHostPort(ip, strconv.Itoa(c.config.Port))

	dialer := &net.Dialer{Timeout: c.config.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		conn.Close()

		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %s: %w", ErrAuthFailure, addr, err)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrUnreachable, addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (c *SSHCollector) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if c.config.KeyPath != "" {
		key, err := os.ReadFile(c.config.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: reading ssh key: %w", ErrAuthFailure, err)
		}

		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: parsing ssh key: %w", ErrAuthFailure, err)
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if c.config.Password != "" {
		methods = append(methods, ssh.Password(c.config.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no ssh credentials configured", ErrAuthFailure)
	}

	return methods, nil
}

func runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	out, err := session.Output(cmd)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// parseUptime reads /proc/uptime: "<seconds up> <idle seconds>".
func parseUptime(out string) int64 {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0
	}

	seconds, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0
	}

	return int64(seconds)
}

// parseLoadAvg reads /proc/loadavg: "0.52 0.58 0.59 1/467 12345".
func parseLoadAvg(out string) (load1, load5, load15 float64) {
	fields := strings.Fields(out)
	if len(fields) < 3 {
		return 0, 0, 0
	}

	load1, _ = strconv.ParseFloat(fields[0], 64)
	load5, _ = strconv.ParseFloat(fields[1], 64)
	load15, _ = strconv.ParseFloat(fields[2], 64)

	return load1, load5, load15
}

// parseMeminfo reads /proc/meminfo kilobyte lines into byte metrics.
func parseMeminfo(out string) models.MemoryMetrics {
	values := make(map[string]uint64)

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		key := strings.TrimSuffix(fields[0], ":")

		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}

		values[key] = kb * 1024
	}

	m := models.MemoryMetrics{
		TotalBytes:     values["MemTotal"],
		AvailableBytes: values["MemAvailable"],
		SwapTotalBytes: values["SwapTotal"],
	}

	if m.TotalBytes >= m.AvailableBytes {
		m.UsedBytes = m.TotalBytes - m.AvailableBytes
	}

	if swapFree, ok := values["SwapFree"]; ok && m.SwapTotalBytes >= swapFree {
		m.SwapUsedBytes = m.SwapTotalBytes - swapFree
	}

	if m.TotalBytes > 0 {
		m.UsagePercent = float64(m.UsedBytes) / float64(m.TotalBytes) * 100
	}

	return m
}

// parseNetDev reads /proc/net/dev counter lines. Addresses are not in the
// file, so interfaces carry name and byte counters only. Loopback is
// skipped.
func parseNetDev(out string) []models.NetworkInterface {
	var interfaces []models.NetworkInterface

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) <= 2 {
		return nil
	}

	for _, line := range lines[2:] {
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		name = strings.TrimSpace(name)
		if name == "" || name == "lo" {
			continue
		}

		// Receive bytes is field 0, transmit bytes is field 8.
		fields := strings.Fields(rest)
		if len(fields) < 9 {
			continue
		}

		recv, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}

		sent, err := strconv.ParseUint(fields[8], 10, 64)
		if err != nil {
			continue
		}

		interfaces = append(interfaces, models.NetworkInterface{
			Name:      name,
			BytesSent: sent,
			BytesRecv: recv,
		})
	}

	return interfaces
}

// parseDF reads POSIX `df -P -B1` output, skipping pseudo filesystems.
func parseDF(out string) []models.StorageDevice {
	var devices []models.StorageDevice

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return nil
	}

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}

		device := fields[0]
		if !strings.HasPrefix(device, "/dev/") {
			continue
		}

		total, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil || total == 0 {
			continue
		}

		used, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			continue
		}

		devices = append(devices, models.StorageDevice{
			Name:         device,
			MountPoint:   fields[5],
			FSType:       "unknown",
			TotalBytes:   total,
			UsedBytes:    used,
			UsagePercent: float64(used) / float64(total) * 100,
		})
	}

	return devices
}
