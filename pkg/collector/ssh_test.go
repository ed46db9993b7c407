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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUptime(t *testing.T) {
	assert.Equal(t, int64(350735), parseUptime("350735.47 234388.90\n"))
	assert.Equal(t, int64(0), parseUptime(""))
	assert.Equal(t, int64(0), parseUptime("garbage"))
}

func TestParseLoadAvg(t *testing.T) {
	l1, l5, l15 := parseLoadAvg("0.52 0.58 0.59 1/467 12345\n")
	assert.InDelta(t, 0.52, l1, 0.001)
	assert.InDelta(t, 0.58, l5, 0.001)
	assert.InDelta(t, 0.59, l15, 0.001)

	l1, l5, l15 = parseLoadAvg("0.52")
	assert.Zero(t, l1)
	assert.Zero(t, l5)
	assert.Zero(t, l15)
}

func TestParseNetDev(t *testing.T) {
	out := `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo: 1000000    5000    0    0    0     0          0         0  1000000    5000    0    0    0     0       0          0
  eth0: 22446688   12345    0    0    0     0          0         0 11223344    6789    0    0    0     0       0          0
 wlan0:  500000     800    0    0    0     0          0         0   250000     400    0    0    0     0       0          0
`

	interfaces := parseNetDev(out)

	require.Len(t, interfaces, 2, "loopback must be skipped")

	assert.Equal(t, "eth0", interfaces[0].Name)
	assert.Equal(t, uint64(22446688), interfaces[0].BytesRecv)
	assert.Equal(t, uint64(11223344), interfaces[0].BytesSent)

	assert.Equal(t, "wlan0", interfaces[1].Name)
	assert.Equal(t, uint64(500000), interfaces[1].BytesRecv)
	assert.Equal(t, uint64(250000), interfaces[1].BytesSent)
}

func TestParseNetDevTruncated(t *testing.T) {
	assert.Nil(t, parseNetDev(""))
	assert.Nil(t, parseNetDev("Inter-| Receive\n face |bytes\n"))
	assert.Empty(t, parseNetDev("Inter-| Receive\n face |bytes\n  eth0: not numbers\n"))
}

func TestParseMeminfo(t *testing.T) {
	out := `MemTotal:       16384000 kB
MemFree:         2048000 kB
MemAvailable:    8192000 kB
Buffers:          512000 kB
SwapTotal:       4096000 kB
SwapFree:        3072000 kB
`

	m := parseMeminfo(out)

	assert.Equal(t, uint64(16384000)*1024, m.TotalBytes)
	assert.Equal(t, uint64(8192000)*1024, m.AvailableBytes)
	assert.Equal(t, uint64(16384000-8192000)*1024, m.UsedBytes)
	assert.Equal(t, uint64(4096000)*1024, m.SwapTotalBytes)
	assert.Equal(t, uint64(4096000-3072000)*1024, m.SwapUsedBytes)
	assert.InDelta(t, 50.0, m.UsagePercent, 0.001)
}

func TestParseMeminfoEmpty(t *testing.T) {
	m := parseMeminfo("")

	assert.Zero(t, m.TotalBytes)
	assert.Zero(t, m.UsagePercent)
}

func TestParseDF(t *testing.T) {
	out := `Filesystem       1-blocks        Used   Available Capacity Mounted on
/dev/sda1     250000000000 50000000000 200000000000      20% /
/dev/sdb1     500000000000           0 500000000000       0% /data
tmpfs           8000000000           0   8000000000       0% /dev/shm
`

	devices := parseDF(out)
	require.Len(t, devices, 2)

	assert.Equal(t, "/dev/sda1", devices[0].Name)
	assert.Equal(t, "/", devices[0].MountPoint)
	assert.Equal(t, uint64(250000000000), devices[0].TotalBytes)
	assert.Equal(t, uint64(50000000000), devices[0].UsedBytes)
	assert.InDelta(t, 20.0, devices[0].UsagePercent, 0.001)

	assert.Equal(t, "/data", devices[1].MountPoint)
	assert.Zero(t, devices[1].UsedBytes)
}

func TestParseDFZeroSizedFilesystemSkipped(t *testing.T) {
	out := `Filesystem 1-blocks Used Available Capacity Mounted on
/dev/loop0 0 0 0 - /snap/core
`

	assert.Empty(t, parseDF(out))
}

func TestSSHAuthMethodsRequireCredentials(t *testing.T) {
	c := NewSSHCollector(SSHCollectorConfig{Username: "probe"}, testLogger())

	_, err := c.authMethods()
	assert.ErrorIs(t, err, ErrAuthFailure)
}

func TestSSHAuthMethodsPassword(t *testing.T) {
	c := NewSSHCollector(SSHCollectorConfig{Username: "probe", Password: "secret"}, testLogger())

	methods, err := c.authMethods()
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}
