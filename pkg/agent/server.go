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

// Package agent serves the aggregated metrics over SNMP on UDP, answering
// v2c community and v3 USM requests against the query engine.
package agent

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/coldfell/hwagent/pkg/config"
	"github.com/coldfell/hwagent/pkg/logger"
	"github.com/coldfell/hwagent/pkg/mib"
)

const (
	maxPacketSize = 64 * 1024

	oidUsmStatsUnknownEngineIDs = ".1.3.6.1.6.3.15.1.1.4.0"
	oidUsmStatsWrongDigests     = ".1.3.6.1.6.3.15.1.1.5.0"
)

var errMalformedPacket = errors.New("malformed packet")

// Server answers SNMP GET, GETNEXT and GETBULK requests over UDP. Requests
// that fail authentication are dropped silently (v2c) or answered with a
// USM report (v3); write requests are rejected.
type Server struct {
	cfg    *config.SNMPConfig
	engine *mib.Engine
	logger logger.Logger

	engineID    string
	engineBoots uint32
	startedAt   time.Time

	mu   sync.Mutex
	conn *net.UDPConn

	unknownEngineIDs counter
	wrongDigests     counter
}

type counter struct {
	mu sync.Mutex
	n  uint32
}

func (c *counter) inc() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.n++

	return c.n
}

func NewServer(cfg *config.SNMPConfig, engine *mib.Engine, log logger.Logger) *Server {
	return &Server{
		cfg:         cfg,
		engine:      engine,
		logger:      log,
		engineID:    generateEngineID(),
		engineBoots: 1,
		startedAt:   time.Now(),
	}
}

// generateEngineID builds an RFC 3411 style engine ID: the enterprise
// prefix with format octet 4 (random) and eight random bytes.
func generateEngineID() string {
	id := []byte{0x80, 0x00, 0x00, 0x00, 0x04}

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		// Degenerate but functional fallback.
		suffix = []byte("hwagent0")
	}

	return string(append(id, suffix...))
}

// Start binds the UDP socket and serves requests until the context is
// canceled.
func (s *Server) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", conn.LocalAddr().String()).
		Bool("v3", s.cfg.V3Username != "").
		Msg("SNMP server listening")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, maxPacketSize)

	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		go s.handlePacket(packet, remote)
	}
}

// Stop closes the socket, unblocking Start.
func (s *Server) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn.Close()
	}

	return nil
}

// Addr returns the bound address, for tests that listen on port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	return s.conn.LocalAddr()
}

func (s *Server) handlePacket(data []byte, remote *net.UDPAddr) {
	version, err := peekVersion(data)
	if err != nil {
		s.logger.Debug().Str("remote", remote.String()).Msg("dropping malformed packet")
		return
	}

	var response []byte

	switch version {
	case gosnmp.Version2c, gosnmp.Version1:
		response = s.handleCommunity(data, remote)
	case gosnmp.Version3:
		response = s.handleV3(data, remote)
	default:
		return
	}

	if response == nil {
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return
	}

	if _, err := conn.WriteToUDP(response, remote); err != nil {
		s.logger.Warn().Err(err).Str("remote", remote.String()).Msg("failed to send response")
	}
}

// handleCommunity serves v1/v2c. A wrong community is dropped without any
// response so the agent does not leak its presence to scanners.
func (s *Server) handleCommunity(data []byte, remote *net.UDPAddr) []byte {
	decoder := &gosnmp.GoSNMP{
		Version:   gosnmp.Version2c,
		Community: s.cfg.Community,
		Timeout:   time.Second,
		Logger:    gosnmp.Logger{},
	}

	packet, err := decoder.SnmpDecodePacket(data)
	if err != nil {
		s.logger.Debug().Err(err).Str("remote", remote.String()).Msg("undecodable community packet")
		return nil
	}

	if packet.Community != s.cfg.Community {
		s.logger.Debug().Str("remote", remote.String()).Msg("dropping request with wrong community")
		return nil
	}

	response := s.answer(packet)
	if response == nil {
		return nil
	}

	out, err := response.MarshalMsg()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal response")
		return nil
	}

	return out
}

// handleV3 serves SNMPv3 USM. Engine discovery probes get a report with
// our engine ID; authentication failures get the usmStatsWrongDigests
// report required for the client to distinguish them from silence.
func (s *Server) handleV3(data []byte, remote *net.UDPAddr) []byte {
	if s.cfg.V3Username == "" {
		s.logger.Debug().Str("remote", remote.String()).Msg("dropping v3 request, v3 disabled")
		return nil
	}

	packet, err := s.v3Decoder().SnmpDecodePacket(data)
	if err != nil {
		return s.v3Report(data, remote, err)
	}

	usm, ok := packet.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if !ok || usm.UserName != s.cfg.V3Username {
		return s.v3Report(data, remote, errMalformedPacket)
	}

	response := s.answer(packet)
	if response == nil {
		return nil
	}

	out, err := response.MarshalMsg()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal v3 response")
		return nil
	}

	return out
}

// v3Decoder builds a decode handle carrying our USM credentials and
// authoritative engine state.
func (s *Server) v3Decoder() *gosnmp.GoSNMP {
	return &gosnmp.GoSNMP{
		Version:            gosnmp.Version3,
		SecurityModel:      gosnmp.UserSecurityModel,
		MsgFlags:           s.v3Flags(),
		Timeout:            time.Second,
		SecurityParameters: s.usmParams(),
	}
}

func (s *Server) v3Flags() gosnmp.SnmpV3MsgFlags {
	switch {
	case s.cfg.V3PrivKey != "":
		return gosnmp.AuthPriv
	case s.cfg.V3AuthKey != "":
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func (s *Server) usmParams() *gosnmp.UsmSecurityParameters {
	return &gosnmp.UsmSecurityParameters{
		UserName:                 s.cfg.V3Username,
		AuthenticationProtocol:   authProtocol(s.cfg.V3AuthProtocol),
		AuthenticationPassphrase: s.cfg.V3AuthKey,
		PrivacyProtocol:          privProtocol(s.cfg.V3PrivProtocol),
		PrivacyPassphrase:        s.cfg.V3PrivKey,
		AuthoritativeEngineID:    s.engineID,
		AuthoritativeEngineBoots: s.engineBoots,
		AuthoritativeEngineTime:  uint32(time.Since(s.startedAt).Seconds()),
	}
}

func authProtocol(name string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(name) {
	case "MD5":
		return gosnmp.MD5
	case "SHA", "":
		return gosnmp.SHA
	default:
		return gosnmp.SHA
	}
}

func privProtocol(name string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(name) {
	case "DES":
		return gosnmp.DES
	case "AES", "":
		return gosnmp.AES
	default:
		return gosnmp.AES
	}
}

// v3Report answers a request we could not authenticate. Engine discovery
// probes (empty engine ID) get usmStatsUnknownEngineIDs with our engine ID
// so the client can retry authenticated; anything else gets
// usmStatsWrongDigests.
func (s *Server) v3Report(data []byte, remote *net.UDPAddr, cause error) []byte {
	// Discovery probes are unauthenticated, so a plain handle can read
	// their header.
	plain := &gosnmp.GoSNMP{
		Version:            gosnmp.Version3,
		SecurityModel:      gosnmp.UserSecurityModel,
		MsgFlags:           gosnmp.NoAuthNoPriv,
		Timeout:            time.Second,
		SecurityParameters: &gosnmp.UsmSecurityParameters{},
	}

	packet, err := plain.SnmpDecodePacket(data)
	if err != nil {
		s.logger.Debug().Err(cause).Str("remote", remote.String()).Msg("dropping undecodable v3 packet")
		return nil
	}

	reportOID := oidUsmStatsWrongDigests
	value := s.wrongDigests.inc()

	usm, _ := packet.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if usm == nil || usm.AuthoritativeEngineID == "" {
		reportOID = oidUsmStatsUnknownEngineIDs
		value = s.unknownEngineIDs.inc()
	} else {
		s.logger.Warn().Str("remote", remote.String()).Msg("v3 authentication failed")
	}

	report := &gosnmp.SnmpPacket{
		Version:       gosnmp.Version3,
		MsgFlags:      gosnmp.Reportable,
		SecurityModel: gosnmp.UserSecurityModel,
		SecurityParameters: &gosnmp.UsmSecurityParameters{
			AuthoritativeEngineID:    s.engineID,
			AuthoritativeEngineBoots: s.engineBoots,
			AuthoritativeEngineTime:  uint32(time.Since(s.startedAt).Seconds()),
		},
		ContextEngineID: s.engineID,
		PDUType:         gosnmp.Report,
		MsgID:           packet.MsgID,
		RequestID:       packet.RequestID,
		MsgMaxSize:      maxPacketSize,
		Variables: []gosnmp.SnmpPDU{{
			Name:  reportOID,
			Type:  gosnmp.Counter32,
			Value: value,
		}},
	}

	out, err := report.MarshalMsg()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal v3 report")
		return nil
	}

	return out
}

// peekVersion reads the SNMP version from the outer BER sequence without a
// full decode, so each version can be dispatched to its own decoder.
func peekVersion(data []byte) (gosnmp.SnmpVersion, error) {
	// SEQUENCE tag, length, then INTEGER(1) version.
	if len(data) < 2 || data[0] != 0x30 {
		return 0, errMalformedPacket
	}

	offset := 2

	if data[1]&0x80 != 0 {
		offset += int(data[1] & 0x7f)
	}

	if len(data) < offset+3 || data[offset] != 0x02 || data[offset+1] != 0x01 {
		return 0, errMalformedPacket
	}

	switch data[offset+2] {
	case 0:
		return gosnmp.Version1, nil
	case 1:
		return gosnmp.Version2c, nil
	case 3:
		return gosnmp.Version3, nil
	default:
		return 0, errMalformedPacket
	}
}
