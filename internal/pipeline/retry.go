// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/metrics"
)

// RetryTask runs fn up to attempts times, waiting delay between attempts.
// A failing task is rerun from the start. It returns the number of attempts
// made and the last error. Cancelling ctx stops further attempts.
func RetryTask(ctx context.Context, name string, attempts int, delay time.Duration, fn func(context.Context) error) (int, error) {
	if attempts < 1 {
		attempts = 1
	}
	log := logging.Ctx(ctx)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			metrics.TaskAttempts.WithLabelValues(name, "success").Inc()
			return attempt, nil
		}
		metrics.TaskAttempts.WithLabelValues(name, "failure").Inc()

		if ctx.Err() != nil || attempt == attempts {
			return attempt, fmt.Errorf("task %s failed after %d attempt(s): %w", name, attempt, err)
		}

		log.Warn().Err(err).Str("task", name).Int("attempt", attempt).
			Dur("retry_in", delay).Msg("Task failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, fmt.Errorf("task %s cancelled before retry: %w", name, err)
		case <-timer.C:
		}
	}
	return attempts, err
}
