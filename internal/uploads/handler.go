package uploads

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type Handler struct {
	log    *slog.Logger
	store  *Store
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, store *Store) *Handler {
	return &Handler{log: log, store: store, tracer: otel.Tracer("uploads-http")}
}

// Routes serves /api/uploads; all of it is admin-only.
func (h *Handler) Routes(requireAdmin func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requireAdmin)
	r.Post("/request-url", h.requestURL)
	r.Put("/{objectID}", h.upload)
	return r
}

// ObjectRoutes serves /objects/uploads publicly so product pages can show images.
func (h *Handler) ObjectRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{objectID}", h.serve)
	return r
}

func (h *Handler) requestURL(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "RequestUploadTarget")
	defer span.End()

	var meta FileMeta
	if err := httpx.DecodeJSON(r, &meta); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	target, err := h.store.RequestUploadTarget(ctx, meta)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, target)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UploadObject")
	defer span.End()

	err := h.store.Save(ctx, chi.URLParam(r, "objectID"), r.Body)
	if errors.Is(err, ErrObjectNotFound) {
		httpx.WriteError(w, r, h.log, apperr.New(apperr.KindValidation, "upload target is unknown or expired"))
		return
	}
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "objectID")
	f, err := h.store.Open(id)
	if errors.Is(err, ErrObjectNotFound) {
		httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "object not found"})
		return
	}
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, id, info.ModTime(), f)
}
