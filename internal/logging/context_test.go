// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestNewRunID(t *testing.T) {
	t.Parallel()

	a, b := NewRunID(), NewRunID()
	if a == b {
		t.Fatalf("NewRunID() returned the same id twice: %s", a)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("NewRunID() = %q is not a uuid: %v", a, err)
	}
}

func TestRunIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := RunIDFromContext(ctx); got != "" {
		t.Errorf("RunIDFromContext(empty) = %q, want empty", got)
	}

	ctx = ContextWithRunID(ctx, "run-1")
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Errorf("RunIDFromContext() = %q, want run-1", got)
	}
}

func TestCtx(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))
	ctx = ContextWithRunID(ctx, "abc123")

	Ctx(ctx).Info().Msg("batch committed")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"abc123"`) {
		t.Errorf("expected run_id in output: %s", out)
	}
	if !strings.Contains(out, "batch committed") {
		t.Errorf("expected message in output: %s", out)
	}
}

func TestCtxWith_NoRunID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), zerolog.New(&buf))

	l := CtxWith(ctx).Str("table", "db_hits").Logger()
	l.Info().Msg("x")

	out := buf.String()
	if strings.Contains(out, "run_id") {
		t.Errorf("unexpected run_id in output: %s", out)
	}
	if !strings.Contains(out, `"table":"db_hits"`) {
		t.Errorf("expected table field in output: %s", out)
	}
}
