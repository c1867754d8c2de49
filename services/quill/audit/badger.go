// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	audit/<unix nanos, 20 digits>/<id>  -> encoded Record
//	id/<id>                             -> primary key
//
// Zero padding keeps lexical key order equal to time order.
const (
	recordPrefix = "audit/"
	indexPrefix  = "id/"
)

func recordKey(r Record) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", recordPrefix, r.StartedAt.UnixNano(), r.ID))
}

func indexKey(id string) []byte {
	return []byte(indexPrefix + id)
}

// Config holds configuration for a BadgerStore.
type Config struct {
	// Path is the directory for database files. Required unless InMemory.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives badger's internal logs. If nil they are discarded.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before a value log file
	// is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns a persistent configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore persists records in BadgerDB.
type BadgerStore struct {
	db        *badger.DB
	gc        *gcRunner
	closeOnce sync.Once
	closeErr  error
}

// NewBadgerStore opens (or creates) a store.
//
// Description:
//
//	Opens a BadgerDB at cfg.Path, or in memory, and starts a value log
//	GC runner when GCInterval is positive and the store is persistent.
//
// Outputs:
//
//	*BadgerStore - The store. Caller must call Close.
//	error - Non-nil if the path is missing or the database cannot open.
func NewBadgerStore(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent audit store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create audit directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	store := &BadgerStore{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		store.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		store.gc.start()
	}
	return store, nil
}

// Append writes the record and its ID index in one transaction.
func (s *BadgerStore) Append(ctx context.Context, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	value, err := encodeRecord(r)
	if err != nil {
		return err
	}
	key := recordKey(r)

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(indexKey(r.ID)); err == nil {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidRecord, r.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(r.ID), key)
	})
	return s.translate(err)
}

// Get looks the record up through the ID index.
func (s *BadgerStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, fmt.Errorf("context cancelled: %w", err)
	}

	var r Record
	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get(indexKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return fmt.Errorf("index points at missing record %s: %w", key, err)
		}
		return item.Value(func(val []byte) error {
			r, err = decodeRecord(val)
			return err
		})
	})
	return r, s.translate(err)
}

// List walks records in reverse key order, which is newest first.
func (s *BadgerStore) List(ctx context.Context, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	limit := q.limit()
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key under the prefix.
		seek := append([]byte(recordPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix([]byte(recordPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r Record
			err := it.Item().Value(func(val []byte) error {
				var derr error
				r, derr = decodeRecord(val)
				return derr
			})
			if err != nil {
				return err
			}
			if !q.matches(r) {
				continue
			}
			out = append(out, r)
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err)
	}
	return out, nil
}

// Close stops GC and closes the database.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		if s.gc != nil {
			s.gc.stop()
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

func (s *BadgerStore) translate(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
	})
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.collect()
		}
	}
}

func (r *gcRunner) collect() {
	// ErrNoRewrite means there was nothing worth collecting.
	err := r.db.RunValueLogGC(r.ratio)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || r.logger == nil {
		return
	}
	r.logger.Warn("audit value log GC error", slog.String("error", err.Error()))
}
