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

// Package mib projects the registry and cache into a sorted object
// identifier space and answers exact, next and bulk-next queries over it.
package mib

import (
	"errors"
	"strconv"
	"strings"
)

var errBadOID = errors.New("malformed OID")

// OID is an object identifier as a tuple of sub-identifiers. OIDs order
// element-wise; a strict prefix sorts before any OID that extends it.
type OID []uint32

// ParseOID parses a dotted OID string, with or without a leading dot.
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return nil, errBadOID
	}

	parts := strings.Split(s, ".")
	oid := make(OID, 0, len(parts))

	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, errBadOID
		}

		oid = append(oid, uint32(n))
	}

	return oid, nil
}

// MustParseOID is ParseOID for compile-time constants.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}

	return oid
}

func (o OID) String() string {
	var b strings.Builder

	for _, n := range o {
		b.WriteByte('.')
		b.WriteString(strconv.FormatUint(uint64(n), 10))
	}

	return b.String()
}

// Cmp compares two OIDs in lexicographic tuple order. It returns -1, 0 or 1.
func (o OID) Cmp(other OID) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}

	for i := 0; i < n; i++ {
		switch {
		case o[i] < other[i]:
			return -1
		case o[i] > other[i]:
			return 1
		}
	}

	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	default:
		return 0
	}
}

// HasPrefix reports whether o starts with prefix.
func (o OID) HasPrefix(prefix OID) bool {
	if len(o) < len(prefix) {
		return false
	}

	for i := range prefix {
		if o[i] != prefix[i] {
			return false
		}
	}

	return true
}

// Append returns a new OID extending o; o is never modified.
func (o OID) Append(parts ...uint32) OID {
	out := make(OID, 0, len(o)+len(parts))
	out = append(out, o...)
	out = append(out, parts...)

	return out
}
