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

package discovery

import (
	"bufio"
	"io"
	"net"
	"os"
	"strings"
)

const procNetARP = "/proc/net/arp"

// readNeighborTable returns the kernel's IPv4 neighbor entries as an
// IP-to-MAC map.
func readNeighborTable() (map[string]string, error) {
	f, err := os.Open(procNetARP)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseNeighborTable(f)
}

// parseNeighborTable reads /proc/net/arp format:
//
//	IP address  HW type  Flags  HW address         Mask  Device
//	10.0.0.1    0x1      0x2    aa:bb:cc:dd:ee:ff  *     eth0
//
// Incomplete entries (flags 0x0 or an all-zero MAC) are skipped.
func parseNeighborTable(r io.Reader) (map[string]string, error) {
	neighbors := make(map[string]string)
	scanner := bufio.NewScanner(r)

	// Header line.
	scanner.Scan()

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}

		ip, flags, mac := fields[0], fields[2], fields[3]

		if flags == "0x0" || mac == "00:00:00:00:00:00" {
			continue
		}

		if net.ParseIP(ip) == nil {
			continue
		}

		neighbors[ip] = strings.ToLower(mac)
	}

	return neighbors, scanner.Err()
}
