package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealflow/internal/document"
	"dealflow/internal/domain"
	"dealflow/internal/platform/metrics"
	"dealflow/pkg/dlerrors"
	"dealflow/pkg/platform/httputil"
	"dealflow/pkg/requestcontext"
)

// Uploads larger than this are rejected before buffering.
const maxUploadBytes = 32 << 20

// Service defines the interface for document operations.
type Service interface {
	Create(ctx context.Context, actor domain.Actor, p document.CreateParams) (*document.Document, error)
	Send(ctx context.Context, actor domain.Actor, documentID string) (*document.Document, error)
	Submit(ctx context.Context, actor domain.Actor, documentID string, up document.Upload) (*document.Document, error)
	Review(ctx context.Context, actor domain.Actor, documentID string, decision document.ReviewDecision, comments string) (*document.Document, error)
	UploadFile(ctx context.Context, actor domain.Actor, documentID string, up document.Upload) (*document.Document, error)
	Share(ctx context.Context, actor domain.Actor, documentID string) (*document.Document, error)
	Get(ctx context.Context, actor domain.Actor, documentID string) (*document.Document, error)
	ListByTransaction(ctx context.Context, actor domain.Actor, transactionID string) ([]*document.Document, error)
}

// Handler handles document endpoints.
type Handler struct {
	logger  *slog.Logger
	docs    Service
	metrics *metrics.Metrics
}

// New creates a new document Handler.
func New(docs Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{logger: logger, docs: docs, metrics: m}
}

// Register registers the document routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transactions/{transactionID}/documents", h.handleCreate)
	r.Get("/transactions/{transactionID}/documents", h.handleList)
	r.Get("/documents/{documentID}", h.handleGet)
	r.Post("/documents/{documentID}/send", h.handleSend)
	r.Post("/documents/{documentID}/submit", h.handleSubmit)
	r.Patch("/documents/{documentID}/review", h.handleReview)
	r.Post("/documents/{documentID}/file", h.handleUploadFile)
	r.Post("/documents/{documentID}/share", h.handleShare)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	d, err := h.docs.Create(ctx, actor, document.CreateParams{
		TransactionID: chi.URLParam(r, "transactionID"),
		Type:          document.Type(req.Type),
		Title:         req.Title,
		Flow:          document.Flow(req.Flow),
		ExpectedFrom:  document.Party(req.ExpectedFrom),
		StageName:     req.Stage,
		DueDate:       req.DueDate,
		AsDraft:       req.AsDraft,
	})
	if err != nil {
		h.logError(ctx, "create document failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toDocumentResponse(d))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	docs, err := h.docs.ListByTransaction(ctx, actor, chi.URLParam(r, "transactionID"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	out := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, toDocumentResponse(d))
	}
	httputil.WriteJSON(w, http.StatusOK, DocumentListResponse{Documents: out})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	d, err := h.docs.Get(ctx, actor, chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	d, err := h.docs.Send(ctx, actor, chi.URLParam(r, "documentID"))
	if err != nil {
		h.logError(ctx, "send document failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	up, err := uploadFromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	d, err := h.docs.Submit(ctx, actor, chi.URLParam(r, "documentID"), up)
	if err != nil {
		h.logError(ctx, "submit document failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.DocumentsSubmitted.Inc()
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	var req ReviewDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, dlerrors.New(dlerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, r, dlerrors.Wrap(err, dlerrors.CodeBadRequest, err.Error()))
		return
	}

	d, err := h.docs.Review(ctx, actor, chi.URLParam(r, "documentID"),
		document.ReviewDecision(req.Decision), req.Comments)
	if err != nil {
		h.logError(ctx, "review document failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	h.metrics.DocumentsReviewed.WithLabelValues(req.Decision).Inc()
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

func (h *Handler) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	up, err := uploadFromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	d, err := h.docs.UploadFile(ctx, actor, chi.URLParam(r, "documentID"), up)
	if err != nil {
		h.logError(ctx, "upload document file failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	d, err := h.docs.Share(ctx, actor, chi.URLParam(r, "documentID"))
	if err != nil {
		h.logError(ctx, "share document failed", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDocumentResponse(d))
}

// uploadFromRequest extracts the multipart "file" part.
func uploadFromRequest(r *http.Request) (document.Upload, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return document.Upload{}, dlerrors.New(dlerrors.CodeBadRequest, "multipart form with a file part is required")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return document.Upload{}, dlerrors.New(dlerrors.CodeBadRequest, "missing file part")
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return document.Upload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}, nil
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
