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

// Package config loads and validates the hwagent configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

var (
	// ErrInvalidConfig marks configuration errors; these are fatal at startup.
	ErrInvalidConfig = errors.New("invalid configuration")

	errReadConfig  = errors.New("failed to read config file")
	errParseConfig = errors.New("failed to parse config file")
)

const (
	defaultScanInterval    = 5 * time.Minute
	defaultCollectInterval = time.Minute
	defaultCollectTimeout  = 30 * time.Second
	defaultProbeTimeout    = time.Second
	defaultConcurrency     = 50
	defaultRetries         = 2
	defaultMissedCycles    = 3
	defaultListenAddr      = ":1161"
	defaultCommunity       = "public"
	defaultMaxRepetitions  = 50
	defaultRemoteSNMPPort  = 161
	defaultSSHPort         = 22
)

// Config is the full agent configuration.
type Config struct {
	SNMP       SNMPConfig       `json:"snmp"`
	Discovery  DiscoveryConfig  `json:"discovery"`
	Collection CollectionConfig `json:"collection"`
	NATS       *NATSConfig      `json:"nats,omitempty"`
	Logging    *logger.Config   `json:"logging,omitempty"`
}

// SNMPConfig configures the protocol server.
type SNMPConfig struct {
	ListenAddr     string `json:"listen_addr"`
	Community      string `json:"community"`
	MaxRepetitions uint32 `json:"max_repetitions"`

	// SNMPv3 USM credentials; v3 is enabled when Username is set.
	V3Username     string `json:"v3_username,omitempty"`
	V3AuthProtocol string `json:"v3_auth_protocol,omitempty"` // MD5 or SHA
	V3AuthKey      string `json:"v3_auth_key,omitempty"`
	V3PrivProtocol string `json:"v3_priv_protocol,omitempty"` // DES or AES
	V3PrivKey      string `json:"v3_priv_key,omitempty"`
}

// DiscoveryConfig configures the discovery engine.
type DiscoveryConfig struct {
	Subnets       []string        `json:"subnets"`
	StaticHosts   []string        `json:"static_hosts,omitempty"`
	ExcludeIPs    []string        `json:"exclude_ips,omitempty"`
	ScanInterval  models.Duration `json:"scan_interval"`
	ProbePorts    []int           `json:"probe_ports,omitempty"`
	ProbeTimeout  models.Duration `json:"probe_timeout"`
	Concurrency   int             `json:"concurrency"`
	ScanNeighbors bool            `json:"scan_neighbors"`
	MissedCycles  int             `json:"missed_cycles"`
}

// CollectionConfig configures the collection orchestrator and the collectors.
type CollectionConfig struct {
	Interval     models.Duration `json:"interval"`
	Timeout      models.Duration `json:"timeout"`
	Retries      int             `json:"retries"`
	Workers      int             `json:"workers"`
	CollectLocal bool            `json:"collect_local"`
	CollectSNMP  bool            `json:"collect_snmp"`
	CollectSSH   bool            `json:"collect_ssh"`

	SNMPCommunity string `json:"snmp_community,omitempty"`
	SNMPPort      uint16 `json:"snmp_port,omitempty"`

	SSHUsername string `json:"ssh_username,omitempty"`
	SSHPassword string `json:"ssh_password,omitempty"`
	SSHKeyPath  string `json:"ssh_key_path,omitempty"`
	SSHPort     int    `json:"ssh_port,omitempty"`

	// Overrides pins a device (by IP) to a collection strategy, bypassing
	// the capability probe.
	Overrides map[string]models.CollectorKind `json:"overrides,omitempty"`
}

// NATSConfig configures the optional bus mirror.
type NATSConfig struct {
	URL           string          `json:"url"`
	SubjectPrefix string          `json:"subject_prefix"`
	Interval      models.Duration `json:"interval"`
}

// Load reads and validates a config file, applying defaults and environment
// overrides for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errReadConfig, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", errParseConfig, err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SNMP.ListenAddr == "" {
		c.SNMP.ListenAddr = defaultListenAddr
	}

	if c.SNMP.Community == "" {
		c.SNMP.Community = defaultCommunity
	}

	if c.SNMP.MaxRepetitions == 0 {
		c.SNMP.MaxRepetitions = defaultMaxRepetitions
	}

	if c.Discovery.ScanInterval == 0 {
		c.Discovery.ScanInterval = models.Duration(defaultScanInterval)
	}

	if c.Discovery.ProbeTimeout == 0 {
		c.Discovery.ProbeTimeout = models.Duration(defaultProbeTimeout)
	}

	if c.Discovery.Concurrency == 0 {
		c.Discovery.Concurrency = defaultConcurrency
	}

	if len(c.Discovery.ProbePorts) == 0 {
		c.Discovery.ProbePorts = []int{22, 80, 443, 161, 3389}
	}

	if c.Discovery.MissedCycles == 0 {
		c.Discovery.MissedCycles = defaultMissedCycles
	}

	if c.Collection.Interval == 0 {
		c.Collection.Interval = models.Duration(defaultCollectInterval)
	}

	if c.Collection.Timeout == 0 {
		c.Collection.Timeout = models.Duration(defaultCollectTimeout)
	}

	if c.Collection.Retries == 0 {
		c.Collection.Retries = defaultRetries
	}

	if c.Collection.Workers == 0 {
		c.Collection.Workers = 10
	}

	if c.Collection.SNMPCommunity == "" {
		c.Collection.SNMPCommunity = defaultCommunity
	}

	if c.Collection.SNMPPort == 0 {
		c.Collection.SNMPPort = defaultRemoteSNMPPort
	}

	if c.Collection.SSHPort == 0 {
		c.Collection.SSHPort = defaultSSHPort
	}

	if c.NATS != nil && c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "hwagent.metrics"
	}

	if c.NATS != nil && c.NATS.Interval == 0 {
		c.NATS.Interval = models.Duration(defaultCollectInterval)
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HWAGENT_COMMUNITY"); v != "" {
		c.SNMP.Community = v
	}

	if v := os.Getenv("HWAGENT_V3_USER"); v != "" {
		c.SNMP.V3Username = v
	}

	if v := os.Getenv("HWAGENT_V3_AUTH_KEY"); v != "" {
		c.SNMP.V3AuthKey = v
	}

	if v := os.Getenv("HWAGENT_V3_PRIV_KEY"); v != "" {
		c.SNMP.V3PrivKey = v
	}

	if v := os.Getenv("HWAGENT_SSH_PASSWORD"); v != "" {
		c.Collection.SSHPassword = v
	}
}

// Validate checks the configuration; any error wraps ErrInvalidConfig and
// should abort startup.
func (c *Config) Validate() error {
	for _, subnet := range c.Discovery.Subnets {
		if _, _, err := net.ParseCIDR(subnet); err != nil {
			return fmt.Errorf("%w: subnet %q: %w", ErrInvalidConfig, subnet, err)
		}
	}

	for _, ip := range append(append([]string{}, c.Discovery.StaticHosts...), c.Discovery.ExcludeIPs...) {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("%w: host %q is not an IP address", ErrInvalidConfig, ip)
		}
	}

	if c.Collection.CollectSSH && c.Collection.SSHUsername == "" {
		return fmt.Errorf("%w: collect_ssh requires ssh_username", ErrInvalidConfig)
	}

	if c.Collection.CollectSSH && c.Collection.SSHPassword == "" && c.Collection.SSHKeyPath == "" {
		return fmt.Errorf("%w: collect_ssh requires ssh_password or ssh_key_path", ErrInvalidConfig)
	}

	if c.SNMP.V3Username != "" && c.SNMP.V3AuthKey == "" {
		return fmt.Errorf("%w: v3_username requires v3_auth_key", ErrInvalidConfig)
	}

	for ip, kind := range c.Collection.Overrides {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("%w: override %q is not an IP address", ErrInvalidConfig, ip)
		}

		switch kind {
		case models.CollectorLocal, models.CollectorSNMP, models.CollectorSSH:
		default:
			return fmt.Errorf("%w: unknown collector %q for %s", ErrInvalidConfig, kind, ip)
		}
	}

	return nil
}
