package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	identityhttp "github.com/dmehra2102/storefront/internal/identity/infrastructure/http"
	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/httpx"
	"github.com/dmehra2102/storefront/pkg/idempotency"
)

type Handler struct {
	log     *slog.Logger
	service *application.Service
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type confirmPaymentReq struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type updateStatusReq struct {
	Status domain.OrderStatus `json:"status"`
}

type createIntentReq struct {
	OrderID int64 `json:"orderId"`
}

// Routes serves /api/orders. Every route needs a signed-in caller; status changes and
// history additionally need an admin, checked before the body is read.
func (h *Handler) Routes(requireUser, requireAdmin func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requireUser)
	r.Get("/", h.listOrders)
	r.Post("/", h.placeOrder)
	r.Get("/{id}", h.getOrder)
	r.Post("/{id}/payment-intent", h.createPaymentIntent)
	r.Post("/{id}/confirm-payment", h.confirmPayment)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Patch("/{id}/status", h.updateStatus)
		r.Get("/{id}/history", h.history)
	})
	return r
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	orders, err := h.service.ListOrders(ctx, identityhttp.FromContext(ctx))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", id))

	view, err := h.service.GetOrder(ctx, identityhttp.FromContext(ctx), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PlaceOrder")
	defer span.End()

	var req domain.PlaceOrderInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}

	view, err := h.service.PlaceOrder(ctx, identityhttp.FromContext(ctx), req, idempotency.HeaderKey(r))
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, r, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", view.ID), attribute.Int64("order.total", view.TotalAmountCents))
	httpx.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	h.writePaymentIntent(w, r, id)
}

// CreatePaymentIntentByBody serves the older POST /api/create-payment-intent form, which
// names the order in the body instead of the path.
func (h *Handler) CreatePaymentIntentByBody(w http.ResponseWriter, r *http.Request) {
	var req createIntentReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if req.OrderID <= 0 {
		httpx.WriteError(w, r, h.log, apperr.New(apperr.KindValidation, "orderId is required"))
		return
	}
	h.writePaymentIntent(w, r, req.OrderID)
}

func (h *Handler) writePaymentIntent(w http.ResponseWriter, r *http.Request, id int64) {
	ctx, span := h.tracer.Start(r.Context(), "CreatePaymentIntent")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", id))

	intent, err := h.service.CreatePaymentIntent(ctx, identityhttp.FromContext(ctx), id)
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, intent)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ConfirmPayment")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", id))

	var req confirmPaymentReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if req.PaymentIntentID == "" {
		httpx.WriteError(w, r, h.log, apperr.New(apperr.KindValidation, "paymentIntentId is required"))
		return
	}

	order, err := h.service.ConfirmPayment(ctx, identityhttp.FromContext(ctx), id, req.PaymentIntentID)
	if err != nil {
		span.RecordError(err)
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	var req updateStatusReq
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	span.SetAttributes(attribute.Int64("order.id", id), attribute.String("order.status", string(req.Status)))

	order, err := h.service.UpdateStatus(ctx, identityhttp.FromContext(ctx), id, req.Status)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderHistory")
	defer span.End()

	id, err := orderID(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	entries, err := h.service.History(ctx, identityhttp.FromContext(ctx), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.KindValidation, "invalid order id")
	}
	return id, nil
}
