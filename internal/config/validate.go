// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package config

import (
	"errors"

	"github.com/tomtom215/gaingest/internal/sink"
	"github.com/tomtom215/gaingest/internal/validation"
)

// Validate checks struct tags, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validatePaths,
		c.validateDatabase,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.Resolve(c.Paths.Incoming) == c.Paths.Resolve(c.Paths.Staging) {
		return errors.New("paths.incoming and paths.staging must differ")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	db := c.Database
	switch db.Dialect() {
	case sink.DialectDuckDB:
		if db.DuckDBPath == "" {
			return errors.New("database.duckdb_path is required for the duckdb driver")
		}
		if db.Provision {
			return errors.New("database.provision applies to the postgres driver only")
		}
	case sink.DialectPostgres:
		if db.DSN == "" && (db.Host == "" || db.Name == "") {
			return errors.New("database.host and database.name are required when database.dsn is empty")
		}
		if db.Provision && db.Name == "" {
			return errors.New("database.provision requires database.name")
		}
	}
	return nil
}
