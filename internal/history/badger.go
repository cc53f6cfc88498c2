// GAIngest - Web Analytics Export Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gaingest

package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/gaingest/internal/logging"
	"github.com/tomtom215/gaingest/internal/pipeline"
)

const (
	runPrefix = "run:"
	idPrefix  = "id:"
)

// BadgerStore persists run reports in BadgerDB. Reports are keyed by start
// time so iteration order is chronological; an id index serves Get.
type BadgerStore struct {
	db     *badger.DB
	retain int
}

// OpenBadger opens (or creates) the history database in dir. An empty dir
// opens an in-memory database. At most retain reports are kept; zero or
// less keeps everything.
func OpenBadger(dir string, retain int) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil                // Suppress BadgerDB internal logs
	opts.ValueLogFileSize = 16 << 20 // 16MB, reports are small
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &BadgerStore{db: db, retain: retain}, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func runKey(r *pipeline.RunReport) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runPrefix, r.StartedAt.UnixNano(), r.ID))
}

// Record implements pipeline.Recorder.
func (s *BadgerStore) Record(ctx context.Context, r *pipeline.RunReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	key := runKey(r)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(idPrefix+r.ID), key)
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	if s.retain > 0 {
		if err := s.prune(); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to prune run history")
		}
	}
	return nil
}

// prune deletes the oldest reports beyond the retention count.
func (s *BadgerStore) prune() error {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		n := 0
		for it.Seek(append([]byte(runPrefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			n++
			if n > s.retain {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil || len(stale) == 0 {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
			id := k[len(runPrefix)+21:]
			if err := txn.Delete(append([]byte(idPrefix), id...)); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns up to limit reports, newest first.
func (s *BadgerStore) List(_ context.Context, limit int) ([]*pipeline.RunReport, error) {
	var out []*pipeline.RunReport
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		for it.Seek(append([]byte(runPrefix), 0xff)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) == limit {
				break
			}
			var r pipeline.RunReport
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Get returns the report with the given id.
func (s *BadgerStore) Get(_ context.Context, id string) (*pipeline.RunReport, error) {
	var r pipeline.RunReport
	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get([]byte(idPrefix + id))
		if err != nil {
			return err
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}
