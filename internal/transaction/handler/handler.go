package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/domain"
	"dealflow/internal/platform/metrics"
	"dealflow/internal/transaction"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

// Service defines the interface for transaction operations.
type Service interface {
	Create(ctx context.Context, p transaction.CreateParams, actor domain.Actor) (*transaction.Transaction, error)
	Advance(ctx context.Context, transactionID, newStageName string, actor domain.Actor) (*transaction.Transaction, error)
	SetStatus(ctx context.Context, transactionID string, status transaction.Status, actor domain.Actor) (*transaction.Transaction, error)
	SetArchived(ctx context.Context, transactionID string, archived bool, actor domain.Actor) (*transaction.Transaction, error)
	Get(ctx context.Context, transactionID string, actor domain.Actor) (*transaction.Transaction, error)
	ListForBroker(ctx context.Context, actor domain.Actor) ([]*transaction.Transaction, error)
	ListForClient(ctx context.Context, actor domain.Actor) ([]*transaction.Transaction, error)
	GrantCoBroker(ctx context.Context, transactionID, coBrokerID string, permissions []transaction.Permission, actor domain.Actor) (*transaction.CoBrokerGrant, error)
}

// Handler handles transaction endpoints.
type Handler struct {
	logger  *slog.Logger
	txns    Service
	metrics *metrics.Metrics
}

// New creates a new transaction Handler.
func New(txns Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{logger: logger, txns: txns, metrics: m}
}

// Register registers the transaction routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transactions", h.handleCreate)
	r.Get("/transactions", h.handleList)
	r.Get("/transactions/{transactionID}", h.handleGet)
	r.Patch("/transactions/{transactionID}/stage", h.handleAdvance)
	r.Patch("/transactions/{transactionID}/status", h.handleSetStatus)
	r.Patch("/transactions/{transactionID}/archive", h.handleSetArchived)
	r.Post("/transactions/{transactionID}/co-brokers", h.handleGrantCoBroker)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	t, err := h.txns.Create(ctx, transaction.CreateParams{
		ClientID:        req.ClientID,
		ClientName:      req.ClientName,
		Side:            req.Side,
		PropertyAddress: req.PropertyAddress,
	}, actor)
	if err != nil {
		h.logError(ctx, "create transaction failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.TransactionsOpened.Inc()
	httputil.WriteJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var (
		txns []*transaction.Transaction
		err  error
	)
	if actor.IsClient() {
		txns, err = h.txns.ListForClient(ctx, actor)
	} else {
		txns, err = h.txns.ListForBroker(ctx, actor)
	}
	if err != nil {
		h.logError(ctx, "list transactions failed", err)
		httputil.WriteError(w, r, err)
		return
	}

	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toTransactionResponse(t))
	}
	httputil.WriteJSON(w, http.StatusOK, TransactionListResponse{Transactions: out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	t, err := h.txns.Get(ctx, chi.URLParam(r, "transactionID"), actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req AdvanceStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	t, err := h.txns.Advance(ctx, chi.URLParam(r, "transactionID"), req.NewStage, actor)
	if err != nil {
		h.logError(ctx, "advance stage failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.StageChanges.Inc()
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}
	status, ok := transaction.ParseStatus(req.Status)
	if !ok {
		httputil.WriteError(w, r, dlerrors.Newf(dlerrors.CodeBadRequest, "unknown status %q", req.Status))
		return
	}

	t, err := h.txns.SetStatus(ctx, chi.URLParam(r, "transactionID"), status, actor)
	if err != nil {
		h.logError(ctx, "set status failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) handleSetArchived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req SetArchivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}

	t, err := h.txns.SetArchived(ctx, chi.URLParam(r, "transactionID"), req.Archived, actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handler) handleGrantCoBroker(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req GrantCoBrokerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	perms := make([]transaction.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, transaction.Permission(p))
	}
	grant, err := h.txns.GrantCoBroker(ctx, chi.URLParam(r, "transactionID"), req.BrokerID, perms, actor)
	if err != nil {
		h.logError(ctx, "grant co-broker failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toGrantResponse(grant))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
