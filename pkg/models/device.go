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

// Package models provides the shared data model for the hwagent services.
package models

import "time"

// DeviceStatus reports the last known reachability of a device. The numeric
// values are the wire values of the machineStatus column.
type DeviceStatus int

const (
	StatusOnline  DeviceStatus = 1
	StatusOffline DeviceStatus = 2
	StatusUnknown DeviceStatus = 3
)

func (s DeviceStatus) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// CollectorKind identifies one of the closed set of collection strategies.
type CollectorKind string

const (
	CollectorNone  CollectorKind = ""
	CollectorLocal CollectorKind = "local"
	CollectorSNMP  CollectorKind = "snmp"
	CollectorSSH   CollectorKind = "ssh"
)

// Device is one monitored machine. The ID is assigned once when the IP is
// first registered and never changes or gets reused for the process
// lifetime; table walks depend on row indices staying put.
type Device struct {
	ID              int           `json:"id"`
	IP              string        `json:"ip"`
	Hostname        string        `json:"hostname,omitempty"`
	MAC             string        `json:"mac,omitempty"`
	Vendor          string        `json:"vendor,omitempty"`
	OSType          string        `json:"os_type,omitempty"`
	DiscoveryMethod string        `json:"discovery_method,omitempty"`
	Status          DeviceStatus  `json:"status"`
	LastSeen        time.Time     `json:"last_seen"`
	Collector       CollectorKind `json:"collector,omitempty"`
}

// DeviceFacts carries identity facts learned about a device by discovery or
// collection. Zero values mean "nothing learned"; they never overwrite
// existing registry state.
type DeviceFacts struct {
	Hostname  string
	MAC       string
	Vendor    string
	OSType    string
	Method    string
	Collector CollectorKind
	SeenAt    time.Time
}
