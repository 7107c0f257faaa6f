package handler

import (
	"time"

	"dealflow/internal/transaction"
)

// TransactionResponse is the wire form of a transaction.
type TransactionResponse struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	ClientName      string    `json:"client_name"`
	BrokerID        string    `json:"broker_id"`
	BrokerName      string    `json:"broker_name"`
	Side            string    `json:"side"`
	Stage           string    `json:"stage"`
	Status          string    `json:"status"`
	PropertyAddress string    `json:"property_address,omitempty"`
	Archived        bool      `json:"archived"`
	OpenedAt        time.Time `json:"opened_at"`
	LastUpdatedAt   time.Time `json:"last_updated_at"`
}

type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

type CoBrokerGrantResponse struct {
	TransactionID string    `json:"transaction_id"`
	BrokerID      string    `json:"broker_id"`
	Permissions   []string  `json:"permissions"`
	GrantedAt     time.Time `json:"granted_at"`
}

func toTransactionResponse(t *transaction.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              t.ID,
		ClientID:        t.ClientID,
		ClientName:      t.ClientName,
		BrokerID:        t.BrokerID,
		BrokerName:      t.BrokerName,
		Side:            string(t.Side),
		Stage:           t.Stage.Name(),
		Status:          string(t.Status),
		PropertyAddress: t.PropertyAddress,
		Archived:        t.Archived,
		OpenedAt:        t.OpenedAt,
		LastUpdatedAt:   t.LastUpdatedAt,
	}
}

func toGrantResponse(g *transaction.CoBrokerGrant) CoBrokerGrantResponse {
	perms := make([]string, 0, len(g.Permissions))
	for _, p := range g.Permissions {
		perms = append(perms, string(p))
	}
	return CoBrokerGrantResponse{
		TransactionID: g.TransactionID,
		BrokerID:      g.BrokerID,
		Permissions:   perms,
		GrantedAt:     g.GrantedAt,
	}
}
