// Package stripe talks to a Stripe-compatible payment intents API over HTTPS.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/dmehra2102/storefront/internal/payment/domain"
)

const DefaultBaseURL = "https://api.stripe.com"

type Client struct {
	log       *slog.Logger
	http      *http.Client
	baseURL   string
	secretKey string
}

func NewClient(log *slog.Logger, baseURL, secretKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		log:       log,
		http:      &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
	}
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) CreateIntent(ctx context.Context, req domain.CreateIntentRequest) (domain.Intent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("automatic_payment_methods[enabled]", "true")
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return domain.Intent{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	return c.do(httpReq)
}

func (c *Client) GetIntent(ctx context.Context, ref string) (domain.Intent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payment_intents/"+url.PathEscape(ref), nil)
	if err != nil {
		return domain.Intent{}, err
	}
	return c.do(httpReq)
}

// CancelIntent closes an unpaid intent so the customer can no longer pay it.
func (c *Client) CancelIntent(ctx context.Context, ref string) (domain.Intent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payment_intents/"+url.PathEscape(ref)+"/cancel", nil)
	if err != nil {
		return domain.Intent{}, err
	}
	httpReq.Header.Set("Idempotency-Key", "cancel-"+ref)
	return c.do(httpReq)
}

func (c *Client) do(req *http.Request) (domain.Intent, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("payment provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Intent{}, fmt.Errorf("read payment provider response: %w", err)
	}
	c.log.Debug("payment provider call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"latency", time.Since(start),
	)

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		if resp.StatusCode == http.StatusNotFound {
			return domain.Intent{}, fmt.Errorf("%w: %s", domain.ErrIntentNotFound, apiErr.Error.Message)
		}
		if apiErr.Error.Code == "payment_intent_unexpected_state" {
			return domain.Intent{}, fmt.Errorf("%w: %s", domain.ErrNotCancelable, apiErr.Error.Message)
		}
		return domain.Intent{}, fmt.Errorf("payment provider error (%d): %s", resp.StatusCode, apiErr.Error.Message)
	}

	var intent domain.Intent
	if err := json.Unmarshal(body, &intent); err != nil {
		return domain.Intent{}, fmt.Errorf("parse payment provider response: %w", err)
	}
	if intent.Ref == "" {
		return domain.Intent{}, errors.New("payment provider returned an intent without id")
	}
	return intent, nil
}
