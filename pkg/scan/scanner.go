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

// Package scan probes hosts for reachability.
package scan

import (
	"context"
	"time"
)

// Target is one host/port probe.
type Target struct {
	Host string
	Port int
}

// Result is the outcome of probing a target. Unreachable targets are
// reported with Available=false, never as errors.
type Result struct {
	Target    Target
	Available bool
	RespTime  time.Duration
	Error     error
}

// Scanner probes a set of targets and streams results. The channel is
// closed once all targets have been probed or the context is canceled.
type Scanner interface {
	Scan(ctx context.Context, targets []Target) (<-chan Result, error)
	Stop() error
}
