package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/domain"
	"dealflow/internal/timeline"
	"dealflow/internal/transaction"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

const defaultActivityLimit = 50

// Service defines the interface for timeline operations.
type Service interface {
	AddEntry(ctx context.Context, transactionID string, actor domain.Actor, t timeline.EntryType, note, docType string, snapshot *timeline.ContextSnapshot) (*timeline.Entry, error)
	ListForBroker(ctx context.Context, transactionID string) ([]*timeline.Entry, error)
	ListForClient(ctx context.Context, transactionID string) ([]*timeline.Entry, error)
	RecentActivity(ctx context.Context, transactionIDs []string, offset, limit int) ([]*timeline.Entry, error)
}

// TransactionResolver gates timeline reads on transaction participation.
type TransactionResolver interface {
	Get(ctx context.Context, transactionID string, actor domain.Actor) (*transaction.Transaction, error)
	ListForBroker(ctx context.Context, actor domain.Actor) ([]*transaction.Transaction, error)
	ListForClient(ctx context.Context, actor domain.Actor) ([]*transaction.Transaction, error)
}

// Handler handles timeline and activity endpoints.
type Handler struct {
	logger   *slog.Logger
	timeline Service
	txns     TransactionResolver
}

// New creates a new timeline Handler.
func New(tl Service, txns TransactionResolver, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, timeline: tl, txns: txns}
}

// Register registers the timeline routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/transactions/{transactionID}/timeline", h.handleList)
	r.Post("/transactions/{transactionID}/notes", h.handleAddNote)
	r.Get("/activity", h.handleActivity)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	transactionID := chi.URLParam(r, "transactionID")

	// Participation check; clients get the filtered view.
	if _, err := h.txns.Get(ctx, transactionID, actor); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var (
		entries []*timeline.Entry
		err     error
	)
	if actor.IsClient() {
		entries, err = h.timeline.ListForClient(ctx, transactionID)
	} else {
		entries, err = h.timeline.ListForBroker(ctx, transactionID)
	}
	if err != nil {
		h.logError(ctx, "list timeline failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTimelineResponse(entries))
}

func (h *Handler) handleAddNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)
	transactionID := chi.URLParam(r, "transactionID")

	var req AddNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	t, err := h.txns.Get(ctx, transactionID, actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	entry, err := h.timeline.AddEntry(ctx, transactionID, actor, timeline.TypeNote,
		req.Note, "", timeline.SnapshotOf(t.ClientName, t.BrokerName, t.Stage))
	if err != nil {
		h.logError(ctx, "add note failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	if entry == nil {
		// Duplicate within the dedup window; nothing new to report.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
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
		httputil.WriteError(w, r, err)
		return
	}

	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		ids = append(ids, t.ID)
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", defaultActivityLimit)

	entries, err := h.timeline.RecentActivity(ctx, ids, offset, limit)
	if err != nil {
		h.logError(ctx, "recent activity failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	if actor.IsClient() {
		entries = visibleOnly(entries)
	}
	httputil.WriteJSON(w, http.StatusOK, toTimelineResponse(entries))
}

func visibleOnly(entries []*timeline.Entry) []*timeline.Entry {
	out := make([]*timeline.Entry, 0, len(entries))
	for _, e := range entries {
		if e.VisibleToClient {
			out = append(out, e)
		}
	}
	return out
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
