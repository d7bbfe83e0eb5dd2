// Streamlens - Quota-Aware Live Stream Aggregation
// Copyright 2026 The Streamlens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/streamlens/streamlens

package connector

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/streamlens/streamlens/internal/models"
)

// GovernorState is the persisted subset of a Governor's counters.
type GovernorState struct {
	QuotaConsumed int64     `json:"quota_consumed"`
	ErrorTally    int       `json:"error_tally"`
	PausedUntil   time.Time `json:"paused_until"`
	PauseReason   string    `json:"pause_reason"`
	SavedAt       time.Time `json:"saved_at"`
}

// StateStore persists governance counters in an embedded Badger store so a
// restart mid-day does not forget how much quota was already spent.
type StateStore struct {
	db *badger.DB
}

// OpenStateStore opens (or creates) the Badger store at path.
func OpenStateStore(path string) (*StateStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open governance state store: %w", err)
	}
	return &StateStore{db: db}, nil
}

// Close releases the underlying store.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// Save writes the counters for a platform.
func (s *StateStore) Save(platform models.Platform, state *GovernorState) error {
	state.SavedAt = time.Now().UTC()
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal governance state: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(platform), data)
	})
}

// Load reads the counters for a platform. A missing key or a record saved
// before the most recent UTC midnight returns nil: stale quota counters
// from a previous day must not carry over.
func (s *StateStore) Load(platform models.Platform) (*GovernorState, error) {
	var state *GovernorState

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(platform))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state = &GovernorState{}
			return json.Unmarshal(val, state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load governance state: %w", err)
	}

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	if state.SavedAt.Before(midnight) {
		return nil, nil
	}
	return state, nil
}

func stateKey(platform models.Platform) []byte {
	return []byte("governor/" + string(platform))
}
