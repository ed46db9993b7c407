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

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

// Prober answers whether a strategy can serve a host. Probes are cheap
// single-shot checks, not full collections.
type Prober interface {
	Probe(ctx context.Context, ip string) bool
}

// Selector resolves the collection strategy for a device. Resolution order:
// explicit configuration override, memoized probe result, the agent's own
// addresses, then capability probes (SNMP before SSH).
type Selector struct {
	overrides  map[string]models.CollectorKind
	collectors map[models.CollectorKind]Collector
	probers    map[models.CollectorKind]Prober
	localIPs   map[string]bool
	logger     logger.Logger
}

func NewSelector(overrides map[string]models.CollectorKind, log logger.Logger) *Selector {
	return &Selector{
		overrides:  overrides,
		collectors: make(map[models.CollectorKind]Collector),
		probers:    make(map[models.CollectorKind]Prober),
		localIPs:   localAddresses(),
		logger:     log,
	}
}

// Register makes a collector available for selection. Collectors that can
// probe register their prober too.
func (s *Selector) Register(c Collector) {
	s.collectors[c.Kind()] = c

	if p, ok := c.(Prober); ok {
		s.probers[c.Kind()] = p
	}
}

// Select returns the collector for a device and the kind the caller should
// memoize. Probing happens only when the device carries no memoized kind.
func (s *Selector) Select(ctx context.Context, device models.Device) (Collector, models.CollectorKind, error) {
	if kind, ok := s.overrides[device.IP]; ok {
		if c, ok := s.collectors[kind]; ok {
			return c, kind, nil
		}

		return nil, models.CollectorNone, fmt.Errorf("%w: override %q is not enabled", ErrNoCollector, kind)
	}

	if device.Collector != models.CollectorNone {
		if c, ok := s.collectors[device.Collector]; ok {
			return c, device.Collector, nil
		}
	}

	if s.localIPs[device.IP] {
		if c, ok := s.collectors[models.CollectorLocal]; ok {
			return c, models.CollectorLocal, nil
		}
	}

	for _, kind := range []models.CollectorKind{models.CollectorSNMP, models.CollectorSSH} {
		c, enabled := s.collectors[kind]
		if !enabled {
			continue
		}

		p, ok := s.probers[kind]
		if !ok {
			continue
		}

		if p.Probe(ctx, device.IP) {
			s.logger.Info().
				Str("ip", device.IP).
				Str("collector", string(kind)).
				Msg("capability probe selected collector")

			return c, kind, nil
		}
	}

	return nil, models.CollectorNone, fmt.Errorf("%w: %s", ErrNoCollector, device.IP)
}

// localAddresses collects the host's own IPs so the agent monitors itself
// in-process instead of over the network.
func localAddresses() map[string]bool {
	ips := map[string]bool{"127.0.0.1": true, "::1": true}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok {
			ips[ipNet.IP.String()] = true
		}
	}

	return ips
}
