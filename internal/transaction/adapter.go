package transaction

import (
	"context"
	"errors"
	"fmt"

	"dealflow/internal/document"
	"dealflow/pkg/platform/sentinel"
)

// Gateway adapts the transaction store to the narrow ports other domains
// declare: document.TransactionReader and the checklist access guard.
type Gateway struct {
	store Store
}

func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

func (g *Gateway) GetRef(ctx context.Context, transactionID string) (*document.TransactionRef, error) {
	t, err := g.store.Get(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("resolve transaction ref: %w", err)
	}
	return &document.TransactionRef{
		ID:         t.ID,
		ClientID:   t.ClientID,
		BrokerID:   t.BrokerID,
		ClientName: t.ClientName,
		BrokerName: t.BrokerName,
		Side:       t.Side,
		Stage:      t.Stage,
	}, nil
}

// BrokerCanEdit reports whether brokerID owns the transaction or holds a
// co-broker grant with EDIT_DOCUMENTS.
func (g *Gateway) BrokerCanEdit(ctx context.Context, transactionID, brokerID string) (bool, error) {
	t, err := g.store.Get(ctx, transactionID)
	if err != nil {
		return false, fmt.Errorf("resolve transaction: %w", err)
	}
	if t.BrokerID == brokerID {
		return true, nil
	}
	grant, err := g.store.GetCoBrokerGrant(ctx, transactionID, brokerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check co-broker grant: %w", err)
	}
	return grant.Has(PermissionEditDocuments), nil
}
