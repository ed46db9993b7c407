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

// Package collector gathers hardware metrics from devices. Each collector
// implements one retrieval strategy; the selector picks a strategy per
// device.
package collector

import (
	"context"

	"github.com/coldfell/hwagent/pkg/models"
)

// Collector retrieves a metrics snapshot for one device. Implementations
// must honor context cancellation: a hung target must not block the caller
// past its deadline.
type Collector interface {
	// Collect gathers a full snapshot. A non-nil snapshot always has
	// DeviceID and CollectedAt populated; metrics the strategy cannot
	// observe are left at their zero values.
	Collect(ctx context.Context, device models.Device) (*models.Snapshot, error)

	// Kind identifies the strategy.
	Kind() models.CollectorKind
}
