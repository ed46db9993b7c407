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

// Enterprise schema for aggregated hardware metrics. The layout is fixed:
// management clients are configured against these OIDs, so changing any of
// them breaks existing table walks.
//
//	.1.3.6.1.4.1.99999.1            hwAggregator
//	  .1 agentInfo
//	       .1.0 agentVersion   .2.0 agentUptime   .3.0 machineCount
//	  .2.1 machineEntry.<col>.<id>   cols: 1 index, 2 ip, 3 hostname,
//	       4 osType, 5 uptime, 6 status, 7 lastSeen
//	  .3.1 cpuEntry.<col>.<id>       cols: 1 index, 2 usage%, 3 cores,
//	       4 threads, 5 freqMHz, 6 tempC, 7 load1m, 8 load5m, 9 load15m,
//	       10 model
//	  .4.1 memoryEntry.<col>.<id>    cols: 1 index, 2 total, 3 used,
//	       4 available, 5 usage%, 6 swapTotal, 7 swapUsed
//	  .5.1 storageEntry.<col>.<id>.<sub>  cols: 1 storageIndex,
//	       2 machineIndex, 3 device, 4 mountPoint, 5 fsType, 6 total,
//	       7 used, 8 free, 9 usage%
//	  .6.1 powerEntry.<col>.<id>     cols: 1 index, 2 cpuCentiwatts,
//	       3 battery%, 4 pluggedIn (1/0/-1)
//	  .7.1 networkEntry.<col>.<id>.<sub>  cols: 1 netIndex, 2 machineIndex,
//	       3 name, 4 ipv4, 5 mac, 6 bytesSent, 7 bytesRecv
var (
	// OIDRoot is the enterprise subtree served by this agent.
	OIDRoot = OID{1, 3, 6, 1, 4, 1, 99999, 1}

	oidAgentInfo    = OIDRoot.Append(1)
	oidAgentVersion = oidAgentInfo.Append(1, 0)
	oidAgentUptime  = oidAgentInfo.Append(2, 0)
	oidMachineCount = oidAgentInfo.Append(3, 0)

	oidMachineEntry = OIDRoot.Append(2, 1)
	oidCPUEntry     = OIDRoot.Append(3, 1)
	oidMemoryEntry  = OIDRoot.Append(4, 1)
	oidStorageEntry = OIDRoot.Append(5, 1)
	oidPowerEntry   = OIDRoot.Append(6, 1)
	oidNetworkEntry = OIDRoot.Append(7, 1)
)

// Machine table columns.
const (
	colMachineIndex = iota + 1
	colMachineIP
	colMachineHostname
	colMachineOSType
	colMachineUptime
	colMachineStatus
	colMachineLastSeen
)

// CPU table columns.
const (
	colCPUIndex = iota + 1
	colCPUUsagePercent
	colCPUCoreCount
	colCPUThreadCount
	colCPUFrequencyMHz
	colCPUTemperature
	colCPULoad1m
	colCPULoad5m
	colCPULoad15m
	colCPUModel
)

// Memory table columns.
const (
	colMemIndex = iota + 1
	colMemTotalBytes
	colMemUsedBytes
	colMemAvailableBytes
	colMemUsagePercent
	colMemSwapTotalBytes
	colMemSwapUsedBytes
)

// Storage table columns, keyed by <machine id>.<sub-index>.
const (
	colStorageIndex = iota + 1
	colStorageMachineIndex
	colStorageDevice
	colStorageMountPoint
	colStorageFSType
	colStorageTotalBytes
	colStorageUsedBytes
	colStorageFreeBytes
	colStorageUsagePercent
)

// Power table columns.
const (
	colPowerIndex = iota + 1
	colPowerCPUWatts
	colPowerBatteryPercent
	colPowerPluggedIn
)

// Network table columns, keyed by <machine id>.<sub-index>.
const (
	colNetIndex = iota + 1
	colNetMachineIndex
	colNetName
	colNetIPAddress
	colNetMACAddress
	colNetBytesSent
	colNetBytesRecv
)
