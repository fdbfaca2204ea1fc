// Package sandbox is an in-memory payment provider for local development and tests. It
// speaks enough of the Stripe payment intents API for the stripe client to use it.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/storefront/internal/payment/domain"
)

const (
	PaymentMethodVisa     = "pm_card_visa"
	PaymentMethodDeclined = "pm_card_chargeDeclined"
)

type Provider struct {
	mu          sync.Mutex
	intents     map[string]domain.Intent
	idempotency map[string]string
	currency    string
}

func NewProvider(currency string) *Provider {
	return &Provider{
		intents:     map[string]domain.Intent{},
		idempotency: map[string]string{},
		currency:    strings.ToLower(currency),
	}
}

func (p *Provider) CreateIntent(_ context.Context, req domain.CreateIntentRequest) (domain.Intent, error) {
	if req.AmountCents <= 0 {
		return domain.Intent{}, fmt.Errorf("amount must be positive, got %d", req.AmountCents)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if req.IdempotencyKey != "" {
		if ref, ok := p.idempotency[req.IdempotencyKey]; ok {
			return p.intents[ref], nil
		}
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = p.currency
	}
	metadata := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	intent := domain.Intent{
		Ref:          "pi_" + id,
		ClientSecret: "pi_" + id + "_secret_" + uuid.NewString()[:8],
		AmountCents:  req.AmountCents,
		Currency:     currency,
		Status:       domain.StatusRequiresPaymentMethod,
		Metadata:     metadata,
	}
	p.intents[intent.Ref] = intent
	if req.IdempotencyKey != "" {
		p.idempotency[req.IdempotencyKey] = intent.Ref
	}
	return intent, nil
}

func (p *Provider) GetIntent(_ context.Context, ref string) (domain.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[ref]
	if !ok {
		return domain.Intent{}, domain.ErrIntentNotFound
	}
	return intent, nil
}

// Confirm plays the part of the customer paying. Declined cards leave the intent waiting
// for another payment method.
func (p *Provider) Confirm(_ context.Context, ref, paymentMethod string) (domain.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[ref]
	if !ok {
		return domain.Intent{}, domain.ErrIntentNotFound
	}
	switch intent.Status {
	case domain.StatusSucceeded, domain.StatusCanceled:
		return intent, fmt.Errorf("intent %s is %s", ref, intent.Status)
	}
	if paymentMethod == "" {
		paymentMethod = PaymentMethodVisa
	}
	if paymentMethod == PaymentMethodDeclined {
		intent.Status = domain.StatusRequiresPaymentMethod
		p.intents[ref] = intent
		return intent, domain.ErrCardDeclined
	}
	intent.Status = domain.StatusSucceeded
	p.intents[ref] = intent
	return intent, nil
}

// CancelIntent closes an intent that has not been paid. Canceling twice is a no-op.
func (p *Provider) CancelIntent(_ context.Context, ref string) (domain.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[ref]
	if !ok {
		return domain.Intent{}, domain.ErrIntentNotFound
	}
	switch intent.Status {
	case domain.StatusCanceled:
		return intent, nil
	case domain.StatusSucceeded, domain.StatusProcessing:
		return intent, fmt.Errorf("%w: intent %s is %s", domain.ErrNotCancelable, ref, intent.Status)
	}
	intent.Status = domain.StatusCanceled
	p.intents[ref] = intent
	return intent, nil
}

// SetStatus forces an intent into any state.
func (p *Provider) SetStatus(ref string, status domain.IntentStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if intent, ok := p.intents[ref]; ok {
		intent.Status = status
		p.intents[ref] = intent
	}
}
