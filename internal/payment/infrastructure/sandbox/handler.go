package sandbox

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type Handler struct {
	log       *slog.Logger
	provider  *Provider
	secretKey string
}

// NewHandler serves the provider over HTTP. An empty secretKey accepts any caller.
func NewHandler(log *slog.Logger, provider *Provider, secretKey string) *Handler {
	return &Handler{log: log, provider: provider, secretKey: secretKey}
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeStripeError(w http.ResponseWriter, status int, typ, code, msg string) {
	var body stripeError
	body.Error.Type = typ
	body.Error.Code = code
	body.Error.Message = msg
	httpx.WriteJSON(w, status, body)
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.authenticate)
	r.Post("/v1/payment_intents", h.createIntent)
	r.Get("/v1/payment_intents/{id}", h.getIntent)
	r.Post("/v1/payment_intents/{id}/confirm", h.confirmIntent)
	r.Post("/v1/payment_intents/{id}/cancel", h.cancelIntent)
	return r
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.secretKey != "" && r.Header.Get("Authorization") != "Bearer "+h.secretKey {
			writeStripeError(w, http.StatusUnauthorized, "invalid_request_error", "", "Invalid API Key provided")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) createIntent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "", "invalid form body")
		return
	}
	amount, err := strconv.ParseInt(r.PostForm.Get("amount"), 10, 64)
	if err != nil {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "parameter_invalid_integer", "Invalid integer: amount")
		return
	}
	metadata := map[string]string{}
	for k, v := range r.PostForm {
		if strings.HasPrefix(k, "metadata[") && strings.HasSuffix(k, "]") && len(v) > 0 {
			metadata[strings.TrimSuffix(strings.TrimPrefix(k, "metadata["), "]")] = v[0]
		}
	}

	intent, err := h.provider.CreateIntent(r.Context(), domain.CreateIntentRequest{
		AmountCents:    amount,
		Currency:       r.PostForm.Get("currency"),
		Metadata:       metadata,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "amount_too_small", err.Error())
		return
	}
	h.log.Info("sandbox intent created", "intent_id", intent.Ref, "amount", intent.AmountCents)
	httpx.WriteJSON(w, http.StatusOK, intent)
}

func (h *Handler) getIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := h.provider.GetIntent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStripeError(w, http.StatusNotFound, "invalid_request_error", "resource_missing", "No such payment_intent")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, intent)
}

func (h *Handler) confirmIntent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "", "invalid form body")
		return
	}
	intent, err := h.provider.Confirm(r.Context(), chi.URLParam(r, "id"), r.PostForm.Get("payment_method"))
	switch {
	case errors.Is(err, domain.ErrIntentNotFound):
		writeStripeError(w, http.StatusNotFound, "invalid_request_error", "resource_missing", "No such payment_intent")
		return
	case errors.Is(err, domain.ErrCardDeclined):
		writeStripeError(w, http.StatusPaymentRequired, "card_error", "card_declined", "Your card was declined.")
		return
	case err != nil:
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "payment_intent_unexpected_state", err.Error())
		return
	}
	h.log.Info("sandbox intent confirmed", "intent_id", intent.Ref)
	httpx.WriteJSON(w, http.StatusOK, intent)
}

func (h *Handler) cancelIntent(w http.ResponseWriter, r *http.Request) {
	intent, err := h.provider.CancelIntent(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, domain.ErrIntentNotFound):
		writeStripeError(w, http.StatusNotFound, "invalid_request_error", "resource_missing", "No such payment_intent")
		return
	case err != nil:
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "payment_intent_unexpected_state", err.Error())
		return
	}
	h.log.Info("sandbox intent canceled", "intent_id", intent.Ref)
	httpx.WriteJSON(w, http.StatusOK, intent)
}
