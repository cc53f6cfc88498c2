// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched in order when no path
// is given. The first file found is used.
var DefaultConfigPaths = []string{
	"gaingest.yaml",
	"gaingest.yml",
	"/etc/gaingest/gaingest.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration: defaults, then the YAML file at path (or
// the first of CONFIG_PATH and DefaultConfigPaths that exists), then
// environment variables. An explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	} else {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to config keys.
// Unlisted variables are ignored.
var envMappings = map[string]string{
	// PROJECT_PATH is the project root used by relative paths.
	"project_path":           "paths.root",
	"incoming_dir":           "paths.incoming",
	"staging_dir":            "paths.staging",
	"main_sessions_csv":      "paths.main_sessions",
	"main_hits_csv":          "paths.main_hits",
	"bootstrap_sessions_csv": "paths.bootstrap_sessions",
	"bootstrap_hits_csv":     "paths.bootstrap_hits",
	"retire_raw":             "paths.retire_raw",
	"remove_empty":           "paths.remove_empty",

	"db_driver":            "database.driver",
	"database_url":         "database.dsn",
	"db_host":              "database.host",
	"db_port":              "database.port",
	"db_name":              "database.name",
	"db_user":              "database.user",
	"db_password":          "database.password",
	"db_sslmode":           "database.sslmode",
	"db_maintenance_name":  "database.maintenance_db",
	"db_provision":         "database.provision",
	"db_conn_max_lifetime": "database.conn_max_lifetime",
	"duckdb_path":          "database.duckdb_path",

	"coercion_policy": "normalize.policy",

	"schedule_cron":        "schedule.cron",
	"schedule_retries":     "schedule.retries",
	"schedule_retry_delay": "schedule.retry_delay",
	"schedule_start_date":  "schedule.start_date",
	"schedule_timezone":    "schedule.timezone",
	"run_on_start":         "schedule.run_on_start",

	"history_dir":    "history.dir",
	"history_retain": "history.retain",

	"http_addr":             "server.addr",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"http_rate_limit":       "server.rate_limit",
	"http_cors_origins":     "server.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
