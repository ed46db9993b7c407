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

package scan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/coldfell/hwagent/pkg/logger"
)

const (
	defaultProbeTimeout = time.Second
	defaultConcurrency  = 50

	workChannelMultiplier = 2
)

// TCPProber checks host reachability with TCP connect probes. A connection
// refused counts as reachable: an RST proves a live IP stack even when the
// port is closed.
type TCPProber struct {
	timeout     time.Duration
	concurrency int
	cancel      context.CancelFunc
	logger      logger.Logger
}

var _ Scanner = (*TCPProber)(nil)

func NewTCPProber(timeout time.Duration, concurrency int, log logger.Logger) *TCPProber {
	if timeout == 0 {
		timeout = defaultProbeTimeout
	}

	if concurrency == 0 {
		concurrency = defaultConcurrency
	}

	return &TCPProber{
		timeout:     timeout,
		concurrency: concurrency,
		logger:      log,
	}
}

func (p *TCPProber) Scan(ctx context.Context, targets []Target) (<-chan Result, error) {
	if len(targets) == 0 {
		ch := make(chan Result)
		close(ch)

		return ch, nil
	}

	scanCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	resultCh := make(chan Result, len(targets))
	workCh := make(chan Target, p.concurrency*workChannelMultiplier)

	var wg sync.WaitGroup

	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			p.worker(scanCtx, workCh, resultCh)
		}()
	}

	go func() {
		defer close(workCh)

		for _, t := range targets {
			select {
			case <-scanCtx.Done():
				return
			case workCh <- t:
			}
		}
	}()

	go func() {
		wg.Wait()

		close(resultCh)
	}()

	return resultCh, nil
}

func (p *TCPProber) worker(ctx context.Context, workCh <-chan Target, resultCh chan<- Result) {
	for t := range workCh {
		result := Result{Target: t}

		avail, rtt, err := p.probe(ctx, t.Host, t.Port)
		result.Available = avail
		result.RespTime = rtt

		if err != nil {
			result.Error = err
		}

		select {
		case <-ctx.Done():
			return
		case resultCh <- result:
		}
	}
}

func (p *TCPProber) probe(ctx context.Context, host string, port int) (bool, time.Duration, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		// A refused connection means the host answered.
		if errors.Is(err, syscall.ECONNREFUSED) {
			return true, time.Since(start), nil
		}

		if probeCtx.Err() != nil {
			return false, time.Since(start), nil
		}

		return false, time.Since(start), err
	}

	defer func(conn net.Conn) {
		if err := conn.Close(); err != nil {
			p.logger.Error().Err(err).Msg("failed to close probe connection")
		}
	}(conn)

	return true, time.Since(start), nil
}

func (p *TCPProber) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}

	return nil
}
