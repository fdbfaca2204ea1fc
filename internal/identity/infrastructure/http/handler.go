package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/storefront/internal/identity/application"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type Handler struct {
	log    *slog.Logger
	gate   *application.Gate
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, gate *application.Gate) *Handler {
	return &Handler{
		log:    log,
		gate:   gate,
		tracer: otel.Tracer("identity-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.With(RequireUser(h.log)).Get("/", h.currentUser)
	return r
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CurrentUser")
	defer span.End()

	u, err := h.gate.CurrentUser(ctx, FromContext(ctx))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}
