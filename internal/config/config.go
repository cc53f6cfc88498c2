// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

// Package config loads GAIngest configuration.
//
// Values are layered: built-in defaults, then an optional YAML file
// (gaingest.yaml, or the file named by CONFIG_PATH), then environment
// variables from an explicit mapping table. The result is validated once
// and passed by value to the constructors that need it.
package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tomtom215/gaingest/internal/normalize"
	"github.com/tomtom215/gaingest/internal/provision"
	"github.com/tomtom215/gaingest/internal/scheduler"
	"github.com/tomtom215/gaingest/internal/sink"
)

// Config is the complete GAIngest configuration.
type Config struct {
	Paths     PathsConfig     `koanf:"paths"`
	Database  DatabaseConfig  `koanf:"database"`
	Normalize NormalizeConfig `koanf:"normalize"`
	Schedule  ScheduleConfig  `koanf:"schedule"`
	History   HistoryConfig   `koanf:"history"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// PathsConfig locates the artifact directories. Relative paths are
// resolved against Root.
type PathsConfig struct {
	Root              string `koanf:"root" validate:"required"`
	Incoming          string `koanf:"incoming" validate:"required"`
	Staging           string `koanf:"staging" validate:"required"`
	MainSessions      string `koanf:"main_sessions"`
	MainHits          string `koanf:"main_hits"`
	BootstrapSessions string `koanf:"bootstrap_sessions" validate:"required"`
	BootstrapHits     string `koanf:"bootstrap_hits" validate:"required"`

	// RetireRaw removes a raw export once its batch is loaded.
	RetireRaw bool `koanf:"retire_raw"`
	// RemoveEmpty removes raw exports that hold no records.
	RemoveEmpty bool `koanf:"remove_empty"`
}

// Resolve returns p made absolute against Root.
func (c PathsConfig) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// DatabaseConfig selects and addresses the relational sink.
type DatabaseConfig struct {
	Driver string `koanf:"driver" validate:"oneof=postgres duckdb"`

	// DSN, when set, is used verbatim for postgres.
	DSN           string `koanf:"dsn"`
	Host          string `koanf:"host"`
	Port          int    `koanf:"port" validate:"gte=1,lte=65535"`
	Name          string `koanf:"name"`
	User          string `koanf:"user"`
	Password      string `koanf:"password"`
	SSLMode       string `koanf:"sslmode" validate:"oneof=disable require verify-ca verify-full"`
	MaintenanceDB string `koanf:"maintenance_db"`

	// Provision creates the database on the server when it is missing.
	Provision bool `koanf:"provision"`

	DuckDBPath      string        `koanf:"duckdb_path"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// NormalizeConfig controls type coercion failures.
type NormalizeConfig struct {
	Policy string `koanf:"policy" validate:"oneof=batch row"`
}

// ScheduleConfig drives the daily run.
type ScheduleConfig struct {
	Cron       string        `koanf:"cron" validate:"required,cron"`
	Retries    int           `koanf:"retries" validate:"gte=0,lte=10"`
	RetryDelay time.Duration `koanf:"retry_delay" validate:"gte=0"`
	StartDate  string        `koanf:"start_date" validate:"required,datetime=2006-01-02"`
	Timezone   string        `koanf:"timezone" validate:"required,timezone"`
	RunOnStart bool          `koanf:"run_on_start"`
}

// HistoryConfig controls the run report store. An empty Dir keeps reports
// in memory only.
type HistoryConfig struct {
	Dir    string `koanf:"dir"`
	Retain int    `koanf:"retain" validate:"gte=0"`
}

// ServerConfig is the ops HTTP listener. An empty Addr disables it.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	// RateLimit caps /api/v1 requests per client IP per minute. Zero disables it.
	RateLimit int `koanf:"rate_limit" validate:"gte=0"`
	// CORSOrigins are the browser origins allowed to read the run API.
	CORSOrigins []string `koanf:"cors_origins" validate:"dive,url|eq=*"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"loglevel"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:              ".",
			Incoming:          "data/extra_data",
			Staging:           "data/prep_data",
			MainSessions:      "data/main_data/ga_sessions.csv",
			MainHits:          "data/main_data/ga_hits.csv",
			BootstrapSessions: "data/prep_data/ga_sessions_prep.csv",
			BootstrapHits:     "data/prep_data/ga_hits_prep.csv",
			RetireRaw:         true,
			RemoveEmpty:       false,
		},
		Database: DatabaseConfig{
			Driver:        string(sink.DialectPostgres),
			Host:          "localhost",
			Port:          5432,
			Name:          "ga_analytics",
			User:          "postgres",
			SSLMode:       "disable",
			MaintenanceDB: "postgres",
			DuckDBPath:    "data/gaingest.duckdb",
		},
		Normalize: NormalizeConfig{
			Policy: string(normalize.PolicyBatch),
		},
		Schedule: ScheduleConfig{
			Cron:       scheduler.DefaultCron,
			Retries:    scheduler.DefaultRetries,
			RetryDelay: scheduler.DefaultRetryDelay,
			StartDate:  scheduler.DefaultStartDate.Format("2006-01-02"),
			Timezone:   "UTC",
		},
		History: HistoryConfig{
			Dir:    "data/history",
			Retain: 90,
		},
		Server: ServerConfig{
			Addr:            ":9464",
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Dialect returns the configured sink dialect.
func (c DatabaseConfig) Dialect() sink.Dialect {
	return sink.Dialect(c.Driver)
}

// PostgresDSN builds a lib/pq connection URL for database name.
func (c DatabaseConfig) PostgresDSN(name string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// SinkConfig builds the store configuration.
func (c *Config) SinkConfig() sink.Config {
	db := c.Database
	cfg := sink.Config{Dialect: db.Dialect(), ConnMaxLifetime: db.ConnMaxLifetime}
	switch {
	case db.Dialect() == sink.DialectDuckDB:
		cfg.DSN = c.Paths.Resolve(db.DuckDBPath)
		if db.DuckDBPath == ":memory:" {
			cfg.DSN = db.DuckDBPath
		}
	case db.DSN != "":
		cfg.DSN = db.DSN
	default:
		cfg.DSN = db.PostgresDSN(db.Name)
	}
	return cfg
}

// Credentials returns the provisioning request for the target database.
func (c *Config) Credentials() provision.Credentials {
	db := c.Database
	return provision.Credentials{
		Database:       db.Name,
		MaintenanceDSN: db.PostgresDSN(db.MaintenanceDB),
	}
}

// Location loads the schedule time zone.
func (c ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SchedulerConfig builds the scheduler configuration.
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	loc, err := c.Schedule.Location()
	if err != nil {
		return scheduler.Config{}, err
	}
	start, err := time.ParseInLocation("2006-01-02", c.Schedule.StartDate, loc)
	if err != nil {
		return scheduler.Config{}, fmt.Errorf("parse start_date: %w", err)
	}
	return scheduler.Config{
		Cron:       c.Schedule.Cron,
		StartDate:  start,
		Location:   loc,
		RunOnStart: c.Schedule.RunOnStart,
	}, nil
}
