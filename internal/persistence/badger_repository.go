package persistence

import (
	"encoding/json"
	"errors"

	"kash-grid-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository is the BadgerDB implementation of the StateRepository.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository creates a repository backed by a BadgerDB database at dbPath.
func NewBadgerRepository(dbPath string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is disabled to keep the app's logs clean.
	// Errors are still returned from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte("simulation_state"),
	}, nil
}

// SaveState marshals the ledger into JSON and writes it under the single state
// key in one transaction. The trade history is trimmed to the most recent
// entries before writing; the in-memory ledger is left untouched.
func (r *badgerRepository) SaveState(state *models.SimulationState) error {
	toSave := state
	if len(state.TradeHistory) > models.TradeHistoryLimit {
		cp := state.Copy()
		cp.TradeHistory = cp.TradeHistory[len(cp.TradeHistory)-models.TradeHistoryLimit:]
		toSave = cp
	}

	data, err := json.Marshal(toSave)
	if err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

// LoadState loads the ledger from storage.
// A missing state key is not an error: it returns (nil, nil) so the caller
// can start with a fresh ledger.
func (r *badgerRepository) LoadState() (*models.SimulationState, error) {
	var state models.SimulationState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if state.Orders == nil {
		state.Orders = make(map[string]*models.OrderRecord)
	}

	return &state, nil
}

// Close gracefully closes the connection to the database.
func (r *badgerRepository) Close() error {
	return r.db.Close()
}
