package document

import (
	"context"
	"errors"

	"dealflow/pkg/platform/sentinel"
)

// ApprovalChecker adapts the document store to the checklist engine's
// approvals port: an item is auto-satisfied exactly when a matching document
// exists and is approved.
type ApprovalChecker struct {
	Store Store
}

func (a ApprovalChecker) IsApproved(ctx context.Context, transactionID, stageName string, docType Type) (bool, error) {
	d, err := a.Store.FindByTransactionStageType(ctx, transactionID, stageName, docType)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return d.Status == StatusApproved, nil
}
