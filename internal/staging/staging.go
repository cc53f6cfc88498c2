// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package staging manages the incoming and staging directories that hold
// artifacts between the preprocess and load phases.
package staging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tomtom215/gaingest/internal/batch"
	"github.com/tomtom215/gaingest/internal/loader"
	"github.com/tomtom215/gaingest/internal/logging"
)

// Area is a pair of directories: raw artifacts arrive in Incoming and
// normalized artifacts wait in Staging until they are loaded.
type Area struct {
	incoming string
	staging  string
}

// NewArea creates both directories if needed.
func NewArea(incoming, staging string) (*Area, error) {
	for _, dir := range []string{incoming, staging} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return &Area{incoming: incoming, staging: staging}, nil
}

// IncomingDir returns the raw artifact directory.
func (a *Area) IncomingDir() string { return a.incoming }

// StagingDir returns the staged artifact directory.
func (a *Area) StagingDir() string { return a.staging }

// ListRaw returns the raw artifacts in the incoming directory ordered by
// date token, then name. Unrecognized files are skipped.
func (a *Area) ListRaw() ([]loader.Artifact, error) {
	return list(a.incoming, func(art loader.Artifact) bool { return !art.Staged })
}

// ListStaged returns the staged CSV artifacts ordered by date token, then name.
func (a *Area) ListStaged() ([]loader.Artifact, error) {
	return list(a.staging, func(art loader.Artifact) bool {
		return art.Staged && art.Format == loader.FormatCSV
	})
}

func list(dir string, keep func(loader.Artifact) bool) ([]loader.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var out []loader.Artifact
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		art, err := loader.ParseArtifactName(filepath.Join(dir, e.Name()))
		if err != nil {
			logging.Debug().Str("file", e.Name()).Err(err).Msg("Skipping unrecognized file")
			continue
		}
		if keep(art) {
			out = append(out, art)
		}
	}
	SortArtifacts(out)
	return out, nil
}

// SortArtifacts orders artifacts by date token, then name.
func SortArtifacts(arts []loader.Artifact) {
	sort.SliceStable(arts, func(i, j int) bool {
		if arts[i].DateToken != arts[j].DateToken {
			return arts[i].DateToken < arts[j].DateToken
		}
		return arts[i].Name < arts[j].Name
	})
}

// Stage writes b as the staged CSV for art and returns its path.
func (a *Area) Stage(art loader.Artifact, b *batch.Batch) (string, error) {
	path := filepath.Join(a.staging, art.StagedName())
	if err := WriteCSV(path, b); err != nil {
		return "", err
	}
	return path, nil
}

// RawPaths returns the incoming files whose stem matches stem.
func (a *Area) RawPaths(stem string) []string {
	var out []string
	for _, ext := range []string{".json", ".csv"} {
		p := filepath.Join(a.incoming, stem+ext)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// Remove deletes path. A missing file is reported as an error wrapping
// os.ErrNotExist so callers can log it as a warning.
func Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// IsMissing reports whether err means the file was already gone.
func IsMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// WriteCSV writes b with a header row to path. Missing values are written
// as empty cells. The file is written to a temporary name and renamed into
// place so readers never see a partial artifact.
func WriteCSV(path string, b *batch.Batch) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err = w.Write(b.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(b.Columns))
	for _, row := range b.Rows {
		for i, v := range row {
			rec[i] = v.String()
		}
		if err = w.Write(rec); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmpName, 0o640); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
