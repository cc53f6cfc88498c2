// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package loader reads raw and staged artifacts into batches.
package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/gaingest/internal/batch"
)

// Load reads the artifact at path, inferring the entity kind from its name.
func Load(path string) (*batch.Batch, error) {
	kind, err := DetectKind(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	return LoadKind(path, kind)
}

// LoadKind reads the artifact at path as the given kind. The format follows
// the extension. Blank text cells decode as missing in both formats, so a
// staged CSV reads back the same as the export it came from. It returns
// ErrEmpty when the artifact holds no records and a *FileReadError when the
// file cannot be read or parsed.
func LoadKind(path string, kind batch.Kind) (*batch.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}

	var b *batch.Batch
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		b, err = decodeJSON(path, kind, data)
	case ".csv":
		b, err = decodeCSV(path, kind, data)
	default:
		return nil, readErr(path, "unsupported extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if b.Len() == 0 {
		return b, ErrEmpty
	}
	return b, nil
}

func decodeJSON(path string, kind batch.Kind, data []byte) (*batch.Batch, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	if len(top) != 1 {
		return nil, readErr(path, "expected exactly one top-level key, found %d", len(top))
	}

	var raw json.RawMessage
	for _, v := range top {
		raw = v
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var records []map[string]any
	if err := dec.Decode(&records); err != nil {
		return nil, &FileReadError{Path: path, Err: fmt.Errorf("decode records: %w", err)}
	}

	b := batch.New(kind, path, jsonColumns(kind, records))
	for i, rec := range records {
		if rec == nil {
			return nil, readErr(path, "record %d is not an object", i)
		}
		row := make(batch.Row, len(b.Columns))
		for c, col := range b.Columns {
			v, ok := rec[col]
			if !ok {
				continue
			}
			cell, err := jsonCell(v)
			if err != nil {
				return nil, readErr(path, "record %d field %s: %v", i, col, err)
			}
			row[c] = cell
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}

// jsonColumns orders the union of record keys: the kind's raw export order
// first, then unknown keys sorted.
func jsonColumns(kind batch.Kind, records []map[string]any) []string {
	schema := batch.SchemaFor(kind)
	seen := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}

	cols := make([]string, 0, len(seen))
	for _, c := range schema.RawColumns {
		if _, ok := seen[c]; ok {
			cols = append(cols, c)
			delete(seen, c)
		}
	}
	extra := make([]string, 0, len(seen))
	for k := range seen {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

func jsonCell(v any) (batch.Value, error) {
	switch x := v.(type) {
	case nil:
		return batch.Null(), nil
	case string:
		if strings.TrimSpace(x) == "" {
			return batch.Null(), nil
		}
		return batch.Text(x), nil
	case json.Number:
		return batch.Text(x.String()), nil
	case bool:
		if x {
			return batch.Text("true"), nil
		}
		return batch.Text("false"), nil
	default:
		return batch.Null(), fmt.Errorf("nested value of type %T", v)
	}
}

func decodeCSV(path string, kind batch.Kind, data []byte) (*batch.Batch, error) {
	r := csv.NewReader(bytes.NewReader(data))

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return batch.New(kind, path, nil), nil
	}
	if err != nil {
		return nil, &FileReadError{Path: path, Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if _, dup := seen[h]; dup {
			return nil, readErr(path, "duplicate column %q", h)
		}
		seen[h] = struct{}{}
	}

	b := batch.New(kind, path, header)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &FileReadError{Path: path, Err: err}
		}
		row := make(batch.Row, len(rec))
		for i, s := range rec {
			if strings.TrimSpace(s) != "" {
				row[i] = batch.Text(s)
			}
		}
		b.Rows = append(b.Rows, row)
	}
	return b, nil
}
