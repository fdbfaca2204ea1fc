// Package audit keeps a trail of order lifecycle actions and who performed them.
package audit

import (
	"context"
	"time"
)

const (
	ActionOrderCreated     = "order_created"
	ActionIntentCreated    = "payment_intent_created"
	ActionPaymentConfirmed = "payment_confirmed"
	ActionStatusChanged    = "status_changed"
	ActionOrderExpired     = "order_expired"
	ActionPaymentRecovered = "payment_recovered"
)

type Entry struct {
	Service   string         `bson:"service" json:"service"`
	Action    string         `bson:"action" json:"action"`
	EntityID  string         `bson:"entity_id" json:"entityId"`
	ActorID   string         `bson:"actor_id" json:"actorId"`
	Data      map[string]any `bson:"data" json:"data"`
	CreatedAt time.Time      `bson:"created_at" json:"createdAt"`
}

// Logger implementations must not fail the caller: a lost audit entry is logged, never
// surfaced as a request error.
type Logger interface {
	Record(ctx context.Context, e Entry)
	History(ctx context.Context, entityID string, limit int64) ([]Entry, error)
}

type Nop struct{}

func (Nop) Record(context.Context, Entry) {}

func (Nop) History(context.Context, string, int64) ([]Entry, error) { return []Entry{}, nil }
