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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/models"
)

func testLogger() logger.Logger {
	return logger.NewTestLogger()
}

// fakeCollector is a probing collector whose answer is scripted per test.
type fakeCollector struct {
	kind     models.CollectorKind
	reach    bool
	probed   int
	snapshot *models.Snapshot
}

func (f *fakeCollector) Kind() models.CollectorKind { return f.kind }

func (f *fakeCollector) Collect(_ context.Context, device models.Device) (*models.Snapshot, error) {
	if f.snapshot != nil {
		return f.snapshot, nil
	}

	return &models.Snapshot{DeviceID: device.ID, CollectedAt: time.Now()}, nil
}

func (f *fakeCollector) Probe(_ context.Context, _ string) bool {
	f.probed++
	return f.reach
}

func TestSelectorOverrideWins(t *testing.T) {
	snmp := &fakeCollector{kind: models.CollectorSNMP, reach: true}
	sshc := &fakeCollector{kind: models.CollectorSSH, reach: true}

	s := NewSelector(map[string]models.CollectorKind{"10.0.0.5": models.CollectorSSH}, testLogger())
	s.Register(snmp)
	s.Register(sshc)

	c, kind, err := s.Select(context.Background(), models.Device{ID: 1, IP: "10.0.0.5"})
	require.NoError(t, err)
	assert.Equal(t, models.CollectorSSH, kind)
	assert.Equal(t, sshc, c)
	assert.Zero(t, snmp.probed, "an override must bypass probing")
}

func TestSelectorOverrideForDisabledStrategy(t *testing.T) {
	s := NewSelector(map[string]models.CollectorKind{"10.0.0.5": models.CollectorSSH}, testLogger())
	s.Register(&fakeCollector{kind: models.CollectorSNMP, reach: true})

	_, _, err := s.Select(context.Background(), models.Device{ID: 1, IP: "10.0.0.5"})
	assert.ErrorIs(t, err, ErrNoCollector)
}

func TestSelectorMemoizedKindSkipsProbe(t *testing.T) {
	snmp := &fakeCollector{kind: models.CollectorSNMP, reach: true}
	sshc := &fakeCollector{kind: models.CollectorSSH, reach: true}

	s := NewSelector(nil, testLogger())
	s.Register(snmp)
	s.Register(sshc)

	dev := models.Device{ID: 1, IP: "10.0.0.7", Collector: models.CollectorSSH}

	c, kind, err := s.Select(context.Background(), dev)
	require.NoError(t, err)
	assert.Equal(t, models.CollectorSSH, kind)
	assert.Equal(t, sshc, c)
	assert.Zero(t, snmp.probed)
	assert.Zero(t, sshc.probed)
}

func TestSelectorProbesSNMPBeforeSSH(t *testing.T) {
	snmp := &fakeCollector{kind: models.CollectorSNMP, reach: true}
	sshc := &fakeCollector{kind: models.CollectorSSH, reach: true}

	s := NewSelector(nil, testLogger())
	s.Register(snmp)
	s.Register(sshc)

	_, kind, err := s.Select(context.Background(), models.Device{ID: 1, IP: "10.0.0.7"})
	require.NoError(t, err)
	assert.Equal(t, models.CollectorSNMP, kind)
	assert.Equal(t, 1, snmp.probed)
	assert.Zero(t, sshc.probed)
}

func TestSelectorFallsBackToSSH(t *testing.T) {
	snmp := &fakeCollector{kind: models.CollectorSNMP, reach: false}
	sshc := &fakeCollector{kind: models.CollectorSSH, reach: true}

	s := NewSelector(nil, testLogger())
	s.Register(snmp)
	s.Register(sshc)

	_, kind, err := s.Select(context.Background(), models.Device{ID: 1, IP: "10.0.0.7"})
	require.NoError(t, err)
	assert.Equal(t, models.CollectorSSH, kind)
}

func TestSelectorNoStrategyApplies(t *testing.T) {
	snmp := &fakeCollector{kind: models.CollectorSNMP, reach: false}
	sshc := &fakeCollector{kind: models.CollectorSSH, reach: false}

	s := NewSelector(nil, testLogger())
	s.Register(snmp)
	s.Register(sshc)

	_, kind, err := s.Select(context.Background(), models.Device{ID: 1, IP: "10.0.0.7"})
	assert.ErrorIs(t, err, ErrNoCollector)
	assert.Equal(t, models.CollectorNone, kind)
}

// probelessCollector implements Collector but not Prober.
type probelessCollector struct {
	kind models.CollectorKind
}

func (p *probelessCollector) Kind() models.CollectorKind { return p.kind }

func (p *probelessCollector) Collect(_ context.Context, device models.Device) (*models.Snapshot, error) {
	return &models.Snapshot{DeviceID: device.ID, CollectedAt: time.Now()}, nil
}

func TestSelectorSkipsCollectorWithoutProber(t *testing.T) {
	sshc := &fakeCollector{kind: models.CollectorSSH, reach: true}

	s := NewSelector(nil, testLogger())
	s.Register(&probelessCollector{kind: models.CollectorSNMP})
	s.Register(sshc)

	c, kind, err := s.Select(context.Background(), models.Device{ID: 1, IP: "10.0.0.7"})
	require.NoError(t, err)
	assert.Equal(t, models.CollectorSSH, kind)
	assert.Equal(t, sshc, c)
}

func TestSelectorLoopbackIsLocal(t *testing.T) {
	local := &fakeCollector{kind: models.CollectorLocal}
	snmp := &fakeCollector{kind: models.CollectorSNMP, reach: true}

	s := NewSelector(nil, testLogger())
	s.Register(local)
	s.Register(snmp)

	_, kind, err := s.Select(context.Background(), models.Device{ID: 1, IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, models.CollectorLocal, kind)
	assert.Zero(t, snmp.probed)
}
