// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package provision

import (
	"context"
	"errors"
	"testing"
)

type fakeCatalog struct {
	present   map[string]bool
	existsErr error
	createErr error
	created   []string
}

func (f *fakeCatalog) exists(_ context.Context, name string) (bool, error) {
	return f.present[name], f.existsErr
}

func (f *fakeCatalog) create(_ context.Context, name string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, name)
	f.present[name] = true
	return nil
}

func TestEnsure(t *testing.T) {
	tests := []struct {
		name        string
		catalog     *fakeCatalog
		wantCreated bool
		wantErr     bool
	}{
		{"missing database is created", &fakeCatalog{present: map[string]bool{}}, true, false},
		{"existing database is left alone", &fakeCatalog{present: map[string]bool{"ga": true}}, false, false},
		{"lookup failure", &fakeCatalog{present: map[string]bool{}, existsErr: errors.New("denied")}, false, true},
		{"create failure", &fakeCatalog{present: map[string]bool{}, createErr: errors.New("denied")}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready, err := ensure(context.Background(), tt.catalog, "ga")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ensure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if ready.Database != "ga" || ready.Created != tt.wantCreated {
				t.Errorf("ensure() = %+v, want created %v", ready, tt.wantCreated)
			}
		})
	}
}

func TestEnsure_Idempotent(t *testing.T) {
	cat := &fakeCatalog{present: map[string]bool{}}
	for i := 0; i < 3; i++ {
		if _, err := ensure(context.Background(), cat, "ga"); err != nil {
			t.Fatalf("ensure() #%d error = %v", i, err)
		}
	}
	if len(cat.created) != 1 {
		t.Errorf("created %d times, want 1", len(cat.created))
	}
}

func TestPostgres_RejectsEmptyName(t *testing.T) {
	if _, err := (Postgres{}).EnsureDatabase(context.Background(), Credentials{}); err == nil {
		t.Error("EnsureDatabase() with empty name succeeded")
	}
}

func TestPostgres_UnreachableServer(t *testing.T) {
	_, err := (Postgres{}).EnsureDatabase(context.Background(), Credentials{
		Database:       "ga",
		MaintenanceDSN: "postgres://postgres@127.0.0.1:1/postgres?sslmode=disable&connect_timeout=1",
	})
	if err == nil {
		t.Error("EnsureDatabase() against a closed port succeeded")
	}
}

func TestNoop(t *testing.T) {
	ready, err := (Noop{}).EnsureDatabase(context.Background(), Credentials{Database: "local"})
	if err != nil || ready.Database != "local" || ready.Created {
		t.Errorf("Noop.EnsureDatabase() = %+v, %v", ready, err)
	}
}

var (
	_ Service = Postgres{}
	_ Service = Noop{}
)
