// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package loader

import (
	"errors"
	"fmt"
)

var (
	// ErrEmpty is returned when an artifact holds no records.
	ErrEmpty = errors.New("artifact is empty")

	// ErrUnrecognizedName is returned for file names that are not artifacts.
	ErrUnrecognizedName = errors.New("unrecognized artifact name")
)

// FileReadError reports an unreadable or malformed artifact.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read artifact %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

func readErr(path string, format string, args ...any) error {
	return &FileReadError{Path: path, Err: fmt.Errorf(format, args...)}
}
