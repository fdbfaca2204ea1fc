package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/storefront/internal/audit"
	"github.com/dmehra2102/storefront/internal/order/domain"
	payment "github.com/dmehra2102/storefront/internal/payment/domain"
)

const expiryBatch = 100

// Expirer cancels pending orders older than ttl and returns their stock to the catalog.
// Orders that already have a payment intent are settled against the provider first: a paid
// intent moves the order to paid, and an open one is canceled before the order is.
type Expirer struct {
	log      *slog.Logger
	repo     OrderRepository
	provider PaymentProvider
	audit    audit.Logger
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewExpirer(log *slog.Logger, repo OrderRepository, provider PaymentProvider, auditLog audit.Logger, ttl, interval time.Duration) *Expirer {
	if auditLog == nil {
		auditLog = audit.Nop{}
	}
	return &Expirer{
		log:      log,
		repo:     repo,
		provider: provider,
		audit:    auditLog,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
	}
}

func (e *Expirer) Run(ctx context.Context) error {
	if e.ttl <= 0 {
		e.log.Info("pending order expiry disabled")
		return nil
	}
	t := time.NewTicker(e.interval)
	defer t.Stop()

	e.log.Info("pending order expiry started", "ttl", e.ttl, "interval", e.interval)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("pending order expiry stopping")
			return nil
		case <-t.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.log.Error("pending order sweep failed", "err", err)
			}
		}
	}
}

// Sweep cancels every stale pending order and returns how many it cancelled. Orders without
// an intent go in batches, one transaction each; the rest are settled one at a time.
func (e *Expirer) Sweep(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.ttl)
	total := 0
	for {
		expired, err := e.repo.ExpirePending(ctx, cutoff, expiryBatch)
		if err != nil {
			return total, err
		}
		for _, o := range expired {
			e.recordExpired(ctx, o)
		}
		total += len(expired)
		if len(expired) < expiryBatch {
			break
		}
	}

	var after int64
	for {
		batch, err := e.repo.StalePendingWithIntent(ctx, cutoff, after, expiryBatch)
		if err != nil {
			return total, err
		}
		for _, o := range batch {
			if e.settle(ctx, o) {
				total++
			}
			after = o.ID
		}
		if len(batch) < expiryBatch {
			return total, nil
		}
	}
}

// settle decides a stale order that has an intent. It reports whether the order was cancelled.
// Anything uncertain leaves the order pending for the next sweep.
func (e *Expirer) settle(ctx context.Context, o domain.Order) bool {
	ref := *o.PaymentIntentRef
	log := e.log.With("order_id", o.ID, "intent_id", ref)

	intent, err := e.provider.GetIntent(ctx, ref)
	switch {
	case errors.Is(err, payment.ErrIntentNotFound):
		return e.cancel(ctx, o, "intent missing")
	case err != nil:
		log.Warn("payment provider unavailable, order left pending", "err", err)
		return false
	}

	switch {
	case intent.Succeeded():
		e.markPaid(ctx, o, intent)
		return false
	case intent.Status == payment.StatusCanceled:
		return e.cancel(ctx, o, "intent canceled")
	case intent.Open():
		canceled, err := e.provider.CancelIntent(ctx, ref)
		if err != nil || canceled.Status != payment.StatusCanceled {
			log.Warn("intent not canceled, order left pending", "status", canceled.Status, "err", err)
			return false
		}
		return e.cancel(ctx, o, "intent abandoned")
	default:
		log.Info("payment in progress, order left pending", "status", intent.Status)
		return false
	}
}

// markPaid marks paid an order whose customer paid but never came back to confirm.
func (e *Expirer) markPaid(ctx context.Context, o domain.Order, intent payment.Intent) {
	log := e.log.With("order_id", o.ID, "intent_id", intent.Ref)
	if err := checkPaidIntent(o, intent); err != nil {
		log.Error("paid intent does not match order, left pending for review", "amount", intent.AmountCents, "err", err)
		return
	}
	paid, err := e.repo.TransitionStatus(ctx, o.ID, domain.StatusPending, domain.StatusPaid)
	if errors.Is(err, domain.ErrStatusConflict) {
		return
	}
	if err != nil {
		log.Error("recover paid order failed", "err", err)
		return
	}
	log.Info("paid order recovered during expiry")
	e.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionPaymentRecovered,
		EntityID: orderEntity(paid.ID),
		ActorID:  "system",
		Data:     map[string]any{"intent_id": intent.Ref, "amount": intent.AmountCents},
	})
}

func (e *Expirer) cancel(ctx context.Context, o domain.Order, reason string) bool {
	cancelled, err := e.repo.TransitionStatus(ctx, o.ID, domain.StatusPending, domain.StatusCancelled)
	if errors.Is(err, domain.ErrStatusConflict) {
		return false
	}
	if err != nil {
		e.log.Error("expire order failed", "order_id", o.ID, "err", err)
		return false
	}
	e.recordExpired(ctx, cancelled, "reason", reason)
	return true
}

func (e *Expirer) recordExpired(ctx context.Context, o domain.Order, attrs ...any) {
	e.log.Info("pending order expired", append([]any{"order_id", o.ID, "user_id", o.UserID, "created_at", o.CreatedAt}, attrs...)...)
	e.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionOrderExpired,
		EntityID: orderEntity(o.ID),
		ActorID:  "system",
		Data:     map[string]any{"ttl": e.ttl.String()},
	})
}
