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

import "errors"

var (
	// ErrUnreachable marks a target that could not be contacted at all.
	ErrUnreachable = errors.New("device unreachable")

	// ErrTimeout marks a collection attempt that exceeded its deadline.
	ErrTimeout = errors.New("collection timed out")

	// ErrAuthFailure marks rejected credentials (SNMP community, SNMPv3
	// USM or SSH).
	ErrAuthFailure = errors.New("authentication failed")

	// ErrParseFailure marks a response the collector could not interpret.
	ErrParseFailure = errors.New("failed to parse device response")

	// ErrNoCollector reports that no strategy applies to a device.
	ErrNoCollector = errors.New("no collector available for device")
)
