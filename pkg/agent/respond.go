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

package agent

import (
	"github.com/gosnmp/gosnmp"

	"github.com/coldfell/hwagent/pkg/mib"
)

// answer builds the response packet for a decoded request, or nil when the
// request deserves no response at all.
func (s *Server) answer(req *gosnmp.SnmpPacket) *gosnmp.SnmpPacket {
	resp := *req
	resp.PDUType = gosnmp.GetResponse
	resp.Error = gosnmp.NoError
	resp.ErrorIndex = 0
	resp.MsgFlags &^= gosnmp.Reportable

	switch req.PDUType {
	case gosnmp.GetRequest:
		resp.Variables = s.doGet(req.Variables)
	case gosnmp.GetNextRequest:
		resp.Variables = s.doGetNext(req.Variables)
	case gosnmp.GetBulkRequest:
		resp.Variables = s.doGetBulk(req)
	case gosnmp.SetRequest:
		// The whole tree is read-only.
		resp.Variables = req.Variables
		resp.Error = gosnmp.NotWritable
		resp.ErrorIndex = 1
	default:
		s.logger.Debug().Str("pdu_type", req.PDUType.String()).Msg("ignoring unsupported PDU type")
		return nil
	}

	return &resp
}

func (s *Server) doGet(vars []gosnmp.SnmpPDU) []gosnmp.SnmpPDU {
	out := make([]gosnmp.SnmpPDU, 0, len(vars))

	for _, v := range vars {
		oid, err := mib.ParseOID(v.Name)
		if err != nil {
			out = append(out, exceptionPDU(v.Name, gosnmp.NoSuchObject))
			continue
		}

		entry, err := s.engine.Get(oid)
		if err != nil {
			out = append(out, exceptionPDU(v.Name, gosnmp.NoSuchObject))
			continue
		}

		out = append(out, pduFromEntry(entry))
	}

	return out
}

func (s *Server) doGetNext(vars []gosnmp.SnmpPDU) []gosnmp.SnmpPDU {
	out := make([]gosnmp.SnmpPDU, 0, len(vars))

	for _, v := range vars {
		oid, err := mib.ParseOID(v.Name)
		if err != nil {
			out = append(out, exceptionPDU(v.Name, gosnmp.EndOfMibView))
			continue
		}

		entry, err := s.engine.GetNext(oid)
		if err != nil {
			out = append(out, exceptionPDU(v.Name, gosnmp.EndOfMibView))
			continue
		}

		out = append(out, pduFromEntry(entry))
	}

	return out
}

// doGetBulk answers GETBULK: the first NonRepeaters variables behave like
// GETNEXT, the rest repeat up to the requested count capped by the
// configured maximum.
func (s *Server) doGetBulk(req *gosnmp.SnmpPacket) []gosnmp.SnmpPDU {
	nonRepeaters := int(req.NonRepeaters)
	if nonRepeaters > len(req.Variables) {
		nonRepeaters = len(req.Variables)
	}

	// max-repetitions zero means zero rows for the repeating varbinds.
	maxReps := int(req.MaxRepetitions)
	if maxReps > int(s.cfg.MaxRepetitions) {
		maxReps = int(s.cfg.MaxRepetitions)
	}

	out := s.doGetNext(req.Variables[:nonRepeaters])

	for _, v := range req.Variables[nonRepeaters:] {
		oid, err := mib.ParseOID(v.Name)
		if err != nil {
			out = append(out, exceptionPDU(v.Name, gosnmp.EndOfMibView))
			continue
		}

		entries := s.engine.GetBulk(oid, maxReps)
		for _, entry := range entries {
			out = append(out, pduFromEntry(entry))
		}

		if len(entries) < maxReps {
			name := v.Name
			if len(entries) > 0 {
				name = entries[len(entries)-1].OID.String()
			}

			out = append(out, exceptionPDU(name, gosnmp.EndOfMibView))
		}
	}

	return out
}

func exceptionPDU(name string, typ gosnmp.Asn1BER) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: typ, Value: nil}
}

// pduFromEntry converts a query engine entry to its wire representation.
func pduFromEntry(entry mib.Entry) gosnmp.SnmpPDU {
	pdu := gosnmp.SnmpPDU{Name: entry.OID.String()}

	switch entry.Type {
	case mib.TypeInteger:
		pdu.Type = gosnmp.Integer
		pdu.Value = entry.Value
	case mib.TypeOctetString:
		pdu.Type = gosnmp.OctetString
		pdu.Value = entry.Value
	case mib.TypeIPAddress:
		pdu.Type = gosnmp.IPAddress
		pdu.Value = entry.Value
	case mib.TypeTimeTicks:
		pdu.Type = gosnmp.TimeTicks
		pdu.Value = entry.Value
	case mib.TypeGauge32:
		pdu.Type = gosnmp.Gauge32
		pdu.Value = entry.Value
	case mib.TypeCounter64:
		pdu.Type = gosnmp.Counter64
		pdu.Value = entry.Value
	default:
		pdu.Type = gosnmp.Null
	}

	return pdu
}
