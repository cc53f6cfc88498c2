// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryTask(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name         string
		attempts     int
		failures     int
		wantAttempts int
		wantErr      bool
	}{
		{"first attempt succeeds", 2, 0, 1, false},
		{"retry succeeds", 2, 1, 2, false},
		{"all attempts fail", 2, 5, 2, true},
		{"zero attempts runs once", 0, 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := RetryTask(context.Background(), "test", tt.attempts, time.Millisecond, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errBoom
				}
				return nil
			})
			if got != tt.wantAttempts || calls != tt.wantAttempts {
				t.Errorf("attempts = %d (calls %d), want %d", got, calls, tt.wantAttempts)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errBoom) {
				t.Errorf("err = %v, want wrapped boom", err)
			}
		})
	}
}

func TestRetryTask_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	n, err := RetryTask(ctx, "test", 3, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	if err == nil {
		t.Fatal("RetryTask() error = nil, want failure")
	}
	if n != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1", n, calls)
	}
	if time.Since(start) > time.Minute {
		t.Error("RetryTask waited out the delay after cancellation")
	}
}
