// Package notify is the outbound notification collaborator. Delivery is
// best-effort everywhere: a failed send is logged and never rolls back or
// masks the state change that triggered it.
package notify

import (
	"context"
	"log/slog"
)

type Kind string

const (
	KindStageChanged      Kind = "stage_changed"
	KindDocumentRequested Kind = "document_requested"
	KindDocumentSubmitted Kind = "document_submitted"
	KindDocumentReviewed  Kind = "document_reviewed"
	KindDocumentShared    Kind = "document_shared"
)

// Message is a templated notification addressed to one recipient.
type Message struct {
	Kind          Kind   `json:"kind"`
	RecipientID   string `json:"recipient_id"`
	TransactionID string `json:"transaction_id"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// BestEffort dispatches msg and downgrades any failure to a log line.
func BestEffort(ctx context.Context, logger *slog.Logger, n Notifier, msg Message) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, msg); err != nil {
		logger.WarnContext(ctx, "notification delivery failed",
			"kind", string(msg.Kind),
			"transaction_id", msg.TransactionID,
			"error", err,
		)
	}
}

// Memory collects messages for tests.
type Memory struct {
	Messages []Message
	Err      error
}

func (m *Memory) Send(_ context.Context, msg Message) error {
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}
