package domain

import "errors"

type IntentStatus string

const (
	StatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	StatusRequiresConfirmation  IntentStatus = "requires_confirmation"
	StatusRequiresAction        IntentStatus = "requires_action"
	StatusProcessing            IntentStatus = "processing"
	StatusSucceeded             IntentStatus = "succeeded"
	StatusCanceled              IntentStatus = "canceled"
)

var (
	ErrIntentNotFound = errors.New("payment intent not found")
	ErrCardDeclined   = errors.New("card declined")
	ErrNotCancelable  = errors.New("payment intent cannot be canceled")
)

// Intent is the provider's view of a single charge attempt.
type Intent struct {
	Ref          string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	AmountCents  int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       IntentStatus      `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (i Intent) Succeeded() bool {
	return i.Status == StatusSucceeded
}

// Open reports whether the customer can still pay this intent.
func (i Intent) Open() bool {
	switch i.Status {
	case StatusRequiresPaymentMethod, StatusRequiresConfirmation, StatusRequiresAction:
		return true
	}
	return false
}

type CreateIntentRequest struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}
