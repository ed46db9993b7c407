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

// Package discovery finds machines on the configured networks and feeds
// identity facts into the registry.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coldfell/hwagent/pkg/config"
	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
	"github.com/coldfell/hwagent/pkg/registry"
	"github.com/coldfell/hwagent/pkg/scan"
)

const (
	// maxHostsPerSubnet bounds CIDR expansion so a typo like /8 cannot
	// flood the network.
	maxHostsPerSubnet = 1024

	reverseDNSTimeout = time.Second

	methodTCPSweep = "tcp_sweep"
	methodNeighbor = "neighbor_table"
	methodStatic   = "static"
)

// Engine runs periodic discovery sweeps against the configured subnets,
// static hosts and the OS neighbor table.
type Engine struct {
	cfg      *config.DiscoveryConfig
	scanner  scan.Scanner
	registry *registry.Registry
	logger   logger.Logger

	excluded  map[string]bool
	resolver  addrResolver
	neighbors func() (map[string]string, error)
}

// addrResolver is the slice of net.Resolver discovery needs.
type addrResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

func NewEngine(cfg *config.DiscoveryConfig, scanner scan.Scanner, reg *registry.Registry, log logger.Logger) *Engine {
	excluded := make(map[string]bool, len(cfg.ExcludeIPs))
	for _, ip := range cfg.ExcludeIPs {
		excluded[ip] = true
	}

	return &Engine{
		cfg:       cfg,
		scanner:   scanner,
		registry:  reg,
		logger:    log,
		excluded:  excluded,
		resolver:  net.DefaultResolver,
		neighbors: readNeighborTable,
	}
}

// Start runs an immediate sweep and then one per scan interval until the
// context is canceled.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info().
		Int("subnets", len(e.cfg.Subnets)).
		Int("static_hosts", len(e.cfg.StaticHosts)).
		Dur("interval", time.Duration(e.cfg.ScanInterval)).
		Msg("starting discovery")

	if err := e.Sweep(ctx); err != nil {
		e.logger.Error().Err(err).Msg("initial discovery sweep failed")
	}

	ticker := time.NewTicker(time.Duration(e.cfg.ScanInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.Sweep(ctx); err != nil {
				e.logger.Error().Err(err).Msg("discovery sweep failed")
			}
		}
	}
}

// Sweep runs one full discovery round: static hosts, TCP sweep of the
// subnets, then the neighbor table. Known devices that responded to nothing
// this round get a miss recorded.
func (e *Engine) Sweep(ctx context.Context) error {
	started := time.Now()
	seen := make(map[string]bool)

	e.registerStatic(seen)

	if err := e.sweepSubnets(ctx, seen); err != nil {
		return err
	}

	if e.cfg.ScanNeighbors {
		e.scanNeighbors(seen)
	}

	e.recordMisses(seen)

	e.logger.Info().
		Int("seen", len(seen)).
		Dur("elapsed", time.Since(started)).
		Msg("discovery sweep complete")

	return nil
}

// registerStatic upserts the configured always-on hosts. Static hosts count
// as seen every round so they never go offline from discovery misses alone.
func (e *Engine) registerStatic(seen map[string]bool) {
	now := time.Now()

	for _, ip := range e.cfg.StaticHosts {
		if e.excluded[ip] {
			continue
		}

		facts := models.DeviceFacts{Method: methodStatic, SeenAt: now}
		e.enrich(ip, &facts)
		e.registry.Upsert(ip, facts)
		seen[ip] = true
	}
}

func (e *Engine) sweepSubnets(ctx context.Context, seen map[string]bool) error {
	targets, err := e.buildTargets()
	if err != nil {
		return err
	}

	if len(targets) == 0 {
		return nil
	}

	results, err := e.scanner.Scan(ctx, targets)
	if err != nil {
		return fmt.Errorf("starting sweep: %w", err)
	}

	now := time.Now()

	for result := range results {
		if !result.Available || seen[result.Target.Host] {
			continue
		}

		facts := models.DeviceFacts{Method: methodTCPSweep, SeenAt: now}
		e.enrich(result.Target.Host, &facts)
		e.registry.Upsert(result.Target.Host, facts)
		seen[result.Target.Host] = true
	}

	return nil
}

func (e *Engine) buildTargets() ([]scan.Target, error) {
	var targets []scan.Target

	for _, subnet := range e.cfg.Subnets {
		hosts, err := expandCIDR(subnet, maxHostsPerSubnet)
		if err != nil {
			return nil, fmt.Errorf("%w: subnet %q: %w", config.ErrInvalidConfig, subnet, err)
		}

		for _, host := range hosts {
			if e.excluded[host] {
				continue
			}

			for _, port := range e.cfg.ProbePorts {
				targets = append(targets, scan.Target{Host: host, Port: port})
			}
		}
	}

	return targets, nil
}

// scanNeighbors folds the OS neighbor (ARP) table into the round. Neighbor
// entries carry MAC addresses, which the sweep cannot observe.
func (e *Engine) scanNeighbors(seen map[string]bool) {
	neighbors, err := e.neighbors()
	if err != nil {
		e.logger.Debug().Err(err).Msg("neighbor table unavailable")
		return
	}

	now := time.Now()

	for ip, mac := range neighbors {
		if e.excluded[ip] {
			continue
		}

		facts := models.DeviceFacts{
			MAC:    mac,
			Vendor: vendorForMAC(mac),
			Method: methodNeighbor,
		}

		// A neighbor entry alone is not proof of life: the kernel keeps
		// entries for peers that stopped answering. Only devices already
		// seen this round get their MAC attached with a SeenAt.
		if seen[ip] {
			facts.SeenAt = now
		}

		if _, known := e.registry.Get(ip); known || seen[ip] {
			e.registry.Upsert(ip, facts)
		}
	}
}

// recordMisses charges a miss to every known device not seen this round.
func (e *Engine) recordMisses(seen map[string]bool) {
	for _, dev := range e.registry.List() {
		if !seen[dev.IP] {
			e.registry.RecordMiss(dev.IP)
		}
	}
}

// enrich fills in reverse-DNS facts, bounded so a slow resolver cannot
// stall the sweep.
func (e *Engine) enrich(ip string, facts *models.DeviceFacts) {
	ctx, cancel := context.WithTimeout(context.Background(), reverseDNSTimeout)
	defer cancel()

	names, err := e.resolver.LookupAddr(ctx, ip)
	if err == nil && len(names) > 0 {
		facts.Hostname = trimFQDN(names[0])
	}
}

func trimFQDN(name string) string {
	if len(name) > 0 && name[len(name)-1] == '.' {
		return name[:len(name)-1]
	}

	return name
}

// expandCIDR lists usable host addresses in a subnet, skipping the network
// and broadcast addresses and stopping at the cap.
func expandCIDR(subnet string, maxHosts int) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, err
	}

	ones, bits := ipNet.Mask.Size()

	// /31 and /32 have no network/broadcast convention.
	if bits-ones <= 1 {
		hosts := []string{ip.Mask(ipNet.Mask).String()}
		if bits-ones == 1 {
			next := nextIP(net.ParseIP(hosts[0]))
			hosts = append(hosts, next.String())
		}

		return hosts, nil
	}

	var hosts []string

	for cur := nextIP(ip.Mask(ipNet.Mask)); ipNet.Contains(cur); cur = nextIP(cur) {
		if len(hosts) >= maxHosts {
			break
		}

		hosts = append(hosts, cur.String())
	}

	// Drop the broadcast address if the loop reached it.
	if len(hosts) > 0 && len(hosts) < maxHosts {
		hosts = hosts[:len(hosts)-1]
	}

	return hosts, nil
}

func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)

	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}

	return next
}
