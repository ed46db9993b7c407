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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/coldfell/hwagent/pkg/agent"
	"github.com/coldfell/hwagent/pkg/bus"
	"github.com/coldfell/hwagent/pkg/cache"
	"github.com/coldfell/hwagent/pkg/collector"
	"github.com/coldfell/hwagent/pkg/config"
	"github.com/coldfell/hwagent/pkg/discovery"
	"github.com/coldfell/hwagent/pkg/lifecycle"
	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/mib"
	"github.com/coldfell/hwagent/pkg/poller"
	"github.com/coldfell/hwagent/pkg/registry"
	"github.com/coldfell/hwagent/pkg/scan"
)

// version is stamped by the build.
var version = "dev"

func main() {
	configPath := flag.String("config", "/etc/hwagent/hwagent.json", "Path to agent config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("hwagent: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logCfg := cfg.Logging
	if logCfg == nil {
		logCfg = logger.DefaultConfig()
	}

	appLogger, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	appLogger.Info().Str("version", version).Msg("hwagent starting")

	reg := registry.New(cfg.Discovery.MissedCycles, appLogger)
	metricsCache := cache.New()

	prober := scan.NewTCPProber(
		time.Duration(cfg.Discovery.ProbeTimeout),
		cfg.Discovery.Concurrency,
		appLogger,
	)

	disc := discovery.NewEngine(&cfg.Discovery, prober, reg, appLogger)

	sel := buildSelector(cfg, appLogger)
	pol := poller.New(&cfg.Collection, sel, reg, metricsCache, appLogger)

	engine := mib.NewEngine(reg, metricsCache, version, appLogger)
	server := agent.NewServer(&cfg.SNMP, engine, appLogger)

	runners := []lifecycle.Runner{
		{Name: "discovery", Run: disc.Start},
		{Name: "poller", Run: pol.Start},
		{Name: "mib", Run: engine.Start},
		{Name: "snmp-server", Run: server.Start},
	}

	if cfg.NATS != nil {
		mirror := bus.NewMirror(cfg.NATS, reg, metricsCache, appLogger)
		runners = append(runners, lifecycle.Runner{Name: "bus-mirror", Run: mirror.Start})
	}

	return lifecycle.Run(context.Background(), appLogger, runners...)
}

func buildSelector(cfg *config.Config, log logger.Logger) *collector.Selector {
	sel := collector.NewSelector(cfg.Collection.Overrides, log)
	timeout := time.Duration(cfg.Collection.Timeout)

	if cfg.Collection.CollectLocal {
		sel.Register(collector.NewLocalCollector(log))
	}

	if cfg.Collection.CollectSNMP {
		sel.Register(collector.NewSNMPCollector(
			cfg.Collection.SNMPCommunity,
			cfg.Collection.SNMPPort,
			timeout,
			log,
		))
	}

	if cfg.Collection.CollectSSH {
		sel.Register(collector.NewSSHCollector(collector.SSHCollectorConfig{
			Username: cfg.Collection.SSHUsername,
			Password: cfg.Collection.SSHPassword,
			KeyPath:  cfg.Collection.SSHKeyPath,
			Port:     cfg.Collection.SSHPort,
			Timeout:  timeout,
		}, log))
	}

	return sel
}
