// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tomtom215/gaingest/internal/batch"
)

// StagedPrefix marks normalized artifacts in the staging area.
const StagedPrefix = "prep_"

// Format is the on-disk encoding of an artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Artifact identifies one raw or staged file.
type Artifact struct {
	Path      string
	Name      string
	Stem      string // file name without extension and without StagedPrefix
	Kind      batch.Kind
	DateToken string
	Format    Format
	Staged    bool
}

// StagedName returns the staging file name for a.
func (a Artifact) StagedName() string {
	return StagedPrefix + a.Stem + ".csv"
}

// DetectKind infers the entity kind of a file name by substring.
func DetectKind(name string) (batch.Kind, error) {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(base, "session"):
		return batch.KindSessions, nil
	case strings.Contains(base, "hits"):
		return batch.KindHits, nil
	default:
		return "", fmt.Errorf("%w: %s: no entity token", ErrUnrecognizedName, name)
	}
}

// ParseArtifactName parses {entity}_{dateToken}.{json|csv}, optionally
// prefixed with StagedPrefix. The date token is the text after the last
// underscore of the stem.
func ParseArtifactName(path string) (Artifact, error) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))

	var format Format
	switch ext {
	case ".json":
		format = FormatJSON
	case ".csv":
		format = FormatCSV
	default:
		return Artifact{}, fmt.Errorf("%w: %s: extension %q", ErrUnrecognizedName, name, ext)
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	staged := strings.HasPrefix(stem, StagedPrefix)
	stem = strings.TrimPrefix(stem, StagedPrefix)

	i := strings.LastIndex(stem, "_")
	if i < 0 || i == len(stem)-1 {
		return Artifact{}, fmt.Errorf("%w: %s: no date token", ErrUnrecognizedName, name)
	}

	kind, err := DetectKind(stem[:i])
	if err != nil {
		return Artifact{}, err
	}

	return Artifact{
		Path:      path,
		Name:      name,
		Stem:      stem,
		Kind:      kind,
		DateToken: stem[i+1:],
		Format:    format,
		Staged:    staged,
	}, nil
}
