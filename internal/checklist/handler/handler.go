package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/checklist"
	"dealflow/internal/domain"
	"dealflow/internal/stage"
	"dealflow/internal/transaction"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

// Engine defines the interface for checklist operations.
type Engine interface {
	Compute(ctx context.Context, actor domain.Actor, transactionID string, st stage.Stage) ([]*checklist.Entry, error)
	ToggleManual(ctx context.Context, actor domain.Actor, transactionID string, st stage.Stage, itemKey string, checked bool) (*checklist.State, error)
}

// TransactionResolver loads the transaction so stage names can be parsed
// against its side.
type TransactionResolver interface {
	Get(ctx context.Context, transactionID string, actor domain.Actor) (*transaction.Transaction, error)
}

// Handler handles checklist endpoints.
type Handler struct {
	logger *slog.Logger
	engine Engine
	txns   TransactionResolver
}

// New creates a new checklist Handler.
func New(engine Engine, txns TransactionResolver, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, engine: engine, txns: txns}
}

// Register registers the checklist routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/transactions/{transactionID}/checklist", h.handleCompute)
	r.Patch("/transactions/{transactionID}/checklist", h.handleToggle)
}

func (h *Handler) handleCompute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	transactionID := chi.URLParam(r, "transactionID")

	st, err := h.resolveStage(ctx, transactionID, r.URL.Query().Get("stage"), actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	entries, err := h.engine.Compute(ctx, actor, transactionID, st)
	if err != nil {
		h.logError(ctx, "compute checklist failed", err)
		httputil.WriteError(w, r, err)
		return
	}

	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httputil.WriteJSON(w, http.StatusOK, ChecklistResponse{Stage: st.Name(), Items: out})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	transactionID := chi.URLParam(r, "transactionID")

	var req ToggleItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	st, err := h.resolveStage(ctx, transactionID, req.Stage, actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	state, err := h.engine.ToggleManual(ctx, actor, transactionID, st, req.ItemKey, req.Checked)
	if err != nil {
		h.logError(ctx, "toggle checklist item failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStateResponse(state))
}

// resolveStage defaults to the transaction's current stage when name is empty.
func (h *Handler) resolveStage(ctx context.Context, transactionID, name string, actor domain.Actor) (stage.Stage, error) {
	t, err := h.txns.Get(ctx, transactionID, actor)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return t.Stage, nil
	}
	st, err := stage.ParseForSide(t.Side, name)
	if err != nil {
		return nil, dlerrors.Wrap(err, dlerrors.CodeBadRequest, "invalid stage for side")
	}
	return st, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
