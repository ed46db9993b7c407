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

import "strings"

// ouiVendors maps well-known OUI prefixes to vendors. This is a small
// built-in subset; unrecognized prefixes report an empty vendor rather than
// a wrong one.
var ouiVendors = map[string]string{
	"00:50:56": "VMware",
	"00:0c:29": "VMware",
	"00:05:69": "VMware",
	"52:54:00": "QEMU",
	"00:16:3e": "Xen",
	"00:15:5d": "Microsoft Hyper-V",
	"08:00:27": "VirtualBox",
	"b8:27:eb": "Raspberry Pi",
	"dc:a6:32": "Raspberry Pi",
	"e4:5f:01": "Raspberry Pi",
	"00:1b:21": "Intel",
	"3c:fd:fe": "Intel",
	"00:25:90": "Super Micro",
	"ac:1f:6b": "Super Micro",
	"00:14:22": "Dell",
	"f4:02:70": "Dell",
	"94:57:a5": "Hewlett Packard",
	"3c:d9:2b": "Hewlett Packard",
	"00:17:a4": "Hewlett Packard",
	"00:1e:c9": "Dell",
	"28:92:4a": "Hewlett Packard",
	"f0:18:98": "Apple",
	"a4:83:e7": "Apple",
	"00:1a:a0": "Dell",
	"d8:9e:f3": "Dell",
	"00:26:b9": "Dell",
}

// vendorForMAC resolves the hardware vendor from a MAC's OUI prefix.
func vendorForMAC(mac string) string {
	mac = strings.ToLower(mac)
	if len(mac) < 8 {
		return ""
	}

	return ouiVendors[mac[:8]]
}
