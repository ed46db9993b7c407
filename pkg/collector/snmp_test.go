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

	"github.com/gosnmp/gosnmp"
	"github.com/stretchr/testify/assert"
)

func TestMemoryFromKB(t *testing.T) {
	m := memoryFromKB(16000000, 8000000, 4000000, 3000000)

	assert.Equal(t, uint64(16000000)*1024, m.TotalBytes)
	assert.Equal(t, uint64(8000000)*1024, m.AvailableBytes)
	assert.Equal(t, uint64(8000000)*1024, m.UsedBytes)
	assert.Equal(t, uint64(4000000)*1024, m.SwapTotalBytes)
	assert.Equal(t, uint64(1000000)*1024, m.SwapUsedBytes)
	assert.InDelta(t, 50.0, m.UsagePercent, 0.001)
}

func TestMemoryFromKBZeroTotal(t *testing.T) {
	m := memoryFromKB(0, 0, 0, 0)

	assert.Zero(t, m.TotalBytes)
	assert.Zero(t, m.UsagePercent)
}

func TestNormalizeOID(t *testing.T) {
	assert.Equal(t, ".1.3.6.1", normalizeOID("1.3.6.1"))
	assert.Equal(t, ".1.3.6.1", normalizeOID(".1.3.6.1"))
}

func TestParseLoadPDU(t *testing.T) {
	assert.InDelta(t, 0.75,
		parseLoad(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("0.75")}), 0.001)
	assert.InDelta(t, 1.25,
		parseLoad(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: "1.25"}), 0.001)
	assert.Zero(t,
		parseLoad(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("n/a")}))
}

func TestFormatMAC(t *testing.T) {
	assert.Equal(t, "aa:bb:cc:00:11:22",
		formatMAC(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{0xaa, 0xbb, 0xcc, 0x00, 0x11, 0x22}}))
	assert.Empty(t, formatMAC(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte{}}))
	assert.Empty(t, formatMAC(gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: "not-bytes"}))
}

func TestPDUString(t *testing.T) {
	assert.Equal(t, "host-1", pduString(gosnmp.SnmpPDU{Value: []byte("host-1")}))
	assert.Equal(t, "host-2", pduString(gosnmp.SnmpPDU{Value: "host-2"}))
	assert.Empty(t, pduString(gosnmp.SnmpPDU{Value: 42}))
}
