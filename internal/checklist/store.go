package checklist

import "context"

// Store persists checklist state rows, unique per (transaction, stage, item).
type Store interface {
	// Get returns the row or nil when none exists yet.
	Get(ctx context.Context, transactionID, stageName, itemKey string) (*State, error)
	// Upsert writes the row, creating it on first touch.
	Upsert(ctx context.Context, st *State) error
	ListByStage(ctx context.Context, transactionID, stageName string) ([]*State, error)
	// DeleteByTransaction removes checklist rows during cascade cleanup.
	DeleteByTransaction(ctx context.Context, transactionID string) error
}
