// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package normalize turns raw batches into the stored schema through a fixed,
// ordered list of stages.
//
// Stage order is ColumnFilter, CategoricalImpute, RequiredFields,
// TypeCoercion and Dedup. Every stage is deterministic and the pipeline is
// idempotent: running it over its own output returns an equal batch with no
// drops, imputations or rejections.
package normalize

import (
	"fmt"
	"strings"

	"github.com/tomtom215/gaingest/internal/batch"
)

// maxIssues bounds the per-stage list of recorded row issues.
const maxIssues = 50

// CoercionPolicy selects what TypeCoercion does with a bad cell.
type CoercionPolicy string

const (
	// PolicyBatch fails the whole batch on the first bad cell.
	PolicyBatch CoercionPolicy = "batch"
	// PolicyRow rejects the offending row and keeps the rest.
	PolicyRow CoercionPolicy = "row"
)

// ParsePolicy parses a policy name. The empty string selects PolicyBatch.
func ParsePolicy(s string) (CoercionPolicy, error) {
	switch CoercionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyBatch:
		return PolicyBatch, nil
	case PolicyRow:
		return PolicyRow, nil
	default:
		return "", fmt.Errorf("unknown coercion policy %q", s)
	}
}

// Options configures a Pipeline.
type Options struct {
	Policy CoercionPolicy
}

// Stage is one transformation of a batch.
type Stage interface {
	Name() string
	Apply(b *batch.Batch) (*batch.Batch, StageResult, error)
}

// StageResult is the structured outcome of one stage.
type StageResult struct {
	Stage    string  `json:"stage"`
	RowsIn   int     `json:"rows_in"`
	RowsOut  int     `json:"rows_out"`
	Dropped  int     `json:"dropped"`
	Imputed  int     `json:"imputed"`
	Rejected int     `json:"rejected"`
	Issues   []error `json:"-"`
}

func (r *StageResult) addIssue(err error) {
	if len(r.Issues) < maxIssues {
		r.Issues = append(r.Issues, err)
	}
}

// Report collects the stage results of one pipeline run.
type Report struct {
	Kind   batch.Kind    `json:"kind"`
	Stages []StageResult `json:"stages"`
}

// Dropped returns the rows removed for missing required fields or duplication.
func (r Report) Dropped() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Dropped
	}
	return n
}

// Rejected returns the rows removed by row-level coercion failures.
func (r Report) Rejected() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Rejected
	}
	return n
}

// Imputed returns the number of cells filled with the sentinel category.
func (r Report) Imputed() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Imputed
	}
	return n
}

// Pipeline is the ordered stage list for one entity kind.
type Pipeline struct {
	kind   batch.Kind
	stages []Stage
}

// New builds the normalization pipeline for kind.
func New(kind batch.Kind, opts Options) *Pipeline {
	schema := batch.SchemaFor(kind)
	policy := opts.Policy
	if policy == "" {
		policy = PolicyBatch
	}
	return &Pipeline{
		kind: kind,
		stages: []Stage{
			&ColumnFilter{schema: schema},
			&CategoricalImpute{schema: schema},
			&RequiredFields{schema: schema},
			&TypeCoercion{schema: schema, policy: policy},
			&Dedup{},
		},
	}
}

// Kind returns the entity kind the pipeline normalizes.
func (p *Pipeline) Kind() batch.Kind { return p.kind }

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run applies every stage in order. The input batch is not modified. On a
// stage error the report holds the results of the stages that completed.
func (p *Pipeline) Run(b *batch.Batch) (*batch.Batch, Report, error) {
	report := Report{Kind: p.kind}
	if b.Kind != p.kind {
		return nil, report, fmt.Errorf("normalize %s pipeline: batch kind is %s", p.kind, b.Kind)
	}

	cur := b
	for _, s := range p.stages {
		next, res, err := s.Apply(cur)
		if err != nil {
			return nil, report, fmt.Errorf("stage %s: %w", s.Name(), err)
		}
		report.Stages = append(report.Stages, res)
		cur = next
	}
	return cur, report, nil
}

// canonicalOrder lists the schema columns present in cols, followed by the
// remaining columns in their current order.
func canonicalOrder(schema batch.Schema, cols []string) []string {
	present := make(map[string]bool, len(cols))
	for _, c := range cols {
		present[c] = true
	}
	out := make([]string, 0, len(cols))
	known := make(map[string]bool, len(schema.Columns))
	for _, c := range schema.Columns {
		known[c] = true
		if present[c] {
			out = append(out, c)
		}
	}
	for _, c := range cols {
		if !known[c] {
			out = append(out, c)
		}
	}
	return out
}
