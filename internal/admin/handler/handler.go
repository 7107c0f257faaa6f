package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/admin"
	"dealflow/internal/domain"
	"dealflow/internal/platform/metrics"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

// Service defines the interface for soft-delete operations.
type Service interface {
	PreviewDeletion(ctx context.Context, resourceType admin.ResourceType, resourceID string, actor domain.Actor) (*admin.Preview, error)
	Delete(ctx context.Context, resourceType admin.ResourceType, resourceID string, actor domain.Actor, confirmed bool) (*admin.AuditRecord, error)
	Restore(ctx context.Context, resourceType admin.ResourceType, resourceID string, actor domain.Actor) (*admin.RestoreResult, error)
	AuditTrail(ctx context.Context, resourceType admin.ResourceType, resourceID string, actor domain.Actor) ([]*admin.AuditRecord, error)
}

// Handler handles the admin soft-delete endpoints.
type Handler struct {
	logger  *slog.Logger
	admin   Service
	metrics *metrics.Metrics
}

// New creates a new admin Handler.
func New(svc Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{logger: logger, admin: svc, metrics: m}
}

// Register registers the admin routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/resources/{resourceType}/{resourceID}/deletion-preview", h.handlePreview)
	r.Delete("/admin/resources/{resourceType}/{resourceID}", h.handleDelete)
	r.Post("/admin/resources/{resourceType}/{resourceID}/restore", h.handleRestore)
	r.Get("/admin/resources/{resourceType}/{resourceID}/audit", h.handleAuditTrail)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	resourceType, resourceID, err := resourceParams(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	preview, err := h.admin.PreviewDeletion(ctx, resourceType, resourceID, actor)
	if err != nil {
		h.logError(ctx, "deletion preview failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPreviewResponse(preview))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	resourceType, resourceID, err := resourceParams(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	confirmed := r.URL.Query().Get("confirmed") == "true"

	if _, err := h.admin.Delete(ctx, resourceType, resourceID, actor, confirmed); err != nil {
		h.logError(ctx, "delete failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.Deletions.WithLabelValues(string(resourceType)).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	resourceType, resourceID, err := resourceParams(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	result, err := h.admin.Restore(ctx, resourceType, resourceID, actor)
	if err != nil {
		h.logError(ctx, "restore failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.Restores.WithLabelValues(string(resourceType)).Inc()
	httputil.WriteJSON(w, http.StatusOK, toRestoreResponse(result))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	resourceType, resourceID, err := resourceParams(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	recs, err := h.admin.AuditTrail(ctx, resourceType, resourceID, actor)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out := make([]AuditRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toAuditResponse(rec))
	}
	httputil.WriteJSON(w, http.StatusOK, AuditTrailResponse{Records: out})
}

func resourceParams(r *http.Request) (admin.ResourceType, string, error) {
	raw := strings.ToUpper(chi.URLParam(r, "resourceType"))
	resourceType, ok := admin.ParseResourceType(raw)
	if !ok {
		return "", "", dlerrors.Newf(dlerrors.CodeBadRequest, "unknown resource type %q", raw)
	}
	return resourceType, chi.URLParam(r, "resourceID"), nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
