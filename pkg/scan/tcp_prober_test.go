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
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldfell/hwagent/pkg/logger"
)

func listenTCP(t *testing.T) (string, int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return host, port
}

func collect(t *testing.T, ch <-chan Result) []Result {
	t.Helper()

	var results []Result

	timeout := time.After(5 * time.Second)

	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return results
			}

			results = append(results, r)
		case <-timeout:
			t.Fatal("timed out draining scan results")
		}
	}
}

func TestTCPProberOpenPort(t *testing.T) {
	host, port := listenTCP(t)

	p := NewTCPProber(time.Second, 5, logger.NewTestLogger())

	ch, err := p.Scan(context.Background(), []Target{{Host: host, Port: port}})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 1)
	assert.True(t, results[0].Available)
	assert.NoError(t, results[0].Error)
}

func TestTCPProberClosedPortIsReachable(t *testing.T) {
	// Bind then close so the port is known-closed; the RST still proves a
	// live stack.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	p := NewTCPProber(time.Second, 5, logger.NewTestLogger())

	ch, err := p.Scan(context.Background(), []Target{{Host: host, Port: port}})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 1)
	assert.True(t, results[0].Available)
}

func TestTCPProberEmptyTargets(t *testing.T) {
	p := NewTCPProber(time.Second, 5, logger.NewTestLogger())

	ch, err := p.Scan(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, collect(t, ch))
}

func TestTCPProberManyTargets(t *testing.T) {
	host, port := listenTCP(t)

	targets := make([]Target, 0, 20)
	for i := 0; i < 20; i++ {
		targets = append(targets, Target{Host: host, Port: port})
	}

	p := NewTCPProber(time.Second, 4, logger.NewTestLogger())

	ch, err := p.Scan(context.Background(), targets)
	require.NoError(t, err)

	results := collect(t, ch)
	assert.Len(t, results, 20)

	for _, r := range results {
		assert.True(t, r.Available)
	}
}

func TestTCPProberStop(t *testing.T) {
	p := NewTCPProber(time.Second, 2, logger.NewTestLogger())

	ch, err := p.Scan(context.Background(), []Target{{Host: "192.0.2.1", Port: 9}})
	require.NoError(t, err)
	require.NoError(t, p.Stop())

	// The channel must still terminate after Stop.
	collect(t, ch)
}
