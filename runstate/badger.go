// Package runstate persists trainer progress in an embedded Badger
// database so a restarted miner resumes its pull/push cadence.
package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"github.com/swarmml/swarmtrain/trainer"
)

const stateKey = "runstate"

type Store struct {
	db *badger.DB
}

var _ trainer.RunStateStore = (*Store)(nil)

func Open(dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("runstate: empty data directory")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	opts := badger.DefaultOptions(filepath.Join(dataDir, "runstate.db"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open run state database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context) (trainer.RunState, error) {
	var state trainer.RunState

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(stateKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return trainer.ErrNoRunState
			}

			return fmt.Errorf("failed to read run state: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return trainer.RunState{}, err
	}

	return state, nil
}

func (s *Store) Save(ctx context.Context, state trainer.RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(stateKey), data)
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}
