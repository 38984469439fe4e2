package persistence

import "kash-grid-bot-go/internal/models"

// StateRepository defines the interface for simulation ledger persistence.
// It abstracts the underlying storage mechanism (e.g., BadgerDB, in-memory)
// from the rest of the application.
type StateRepository interface {
	// SaveState atomically saves the entire simulation ledger.
	SaveState(state *models.SimulationState) error

	// LoadState loads the ledger from storage.
	// If no state is found, it returns (nil, nil).
	LoadState() (*models.SimulationState, error)

	// Close gracefully closes the connection to the database.
	Close() error
}
