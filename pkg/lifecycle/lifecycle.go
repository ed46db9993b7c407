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

// Package lifecycle runs a set of long-lived components under one signal
// handler and tears them all down when any one fails.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coldfell/hwagent/pkg/logger"
)

// Runner is a named blocking component. Run must return promptly once its
// context is canceled; returning ctx.Err() at shutdown is not a failure.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run starts every runner and blocks until SIGINT/SIGTERM or the first
// runner failure, then cancels the rest and waits for them to exit.
func Run(ctx context.Context, log logger.Logger, runners ...Runner) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(runners))

	var wg sync.WaitGroup

	for _, r := range runners {
		r := r

		wg.Add(1)

		go func() {
			defer wg.Done()

			log.Info().Str("component", r.Name).Msg("component starting")

			err := r.Run(runCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", r.Name, err)
				return
			}

			log.Info().Str("component", r.Name).Msg("component stopped")
		}()
	}

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("component failed, shutting down")
	}

	cancel()
	wg.Wait()

	return runErr
}
