package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dmehra2102/storefront/internal/audit"
	identity "github.com/dmehra2102/storefront/internal/identity/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	payment "github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/internal/pricing"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/validation"
)

const historyLimit = 100

type Service struct {
	log      *slog.Logger
	repo     OrderRepository
	products pricing.ProductLookup
	provider PaymentProvider
	gate     AdminGate
	currency string
	idem     IdempotencyStore
	audit    audit.Logger
	validate *validation.Validator
}

func NewService(log *slog.Logger, repo OrderRepository, products pricing.ProductLookup, provider PaymentProvider, gate AdminGate, currency string) *Service {
	return &Service{
		log:      log,
		repo:     repo,
		products: products,
		provider: provider,
		gate:     gate,
		currency: currency,
		audit:    audit.Nop{},
		validate: validation.New(),
	}
}

func (s *Service) WithIdempotency(store IdempotencyStore) *Service {
	s.idem = store
	return s
}

func (s *Service) WithAudit(l audit.Logger) *Service {
	s.audit = l
	return s
}

// PlaceOrder prices the cart against the live catalog and creates a pending order that
// holds its inventory. With an idempotency key, a retry returns the first order.
func (s *Service) PlaceOrder(ctx context.Context, who *identity.Identity, in domain.PlaceOrderInput, idemKey string) (domain.OrderView, error) {
	if who == nil {
		return domain.OrderView{}, identity.ErrUnauthenticated
	}
	if err := s.validate.Struct(in); err != nil {
		return domain.OrderView{}, err
	}

	key, fp := "", ""
	if idemKey != "" && s.idem != nil {
		var err error
		if fp, err = idempotency.Fingerprint(in); err != nil {
			return domain.OrderView{}, apperr.Internal(err)
		}
		key = s.idem.Key("orders", who.UserID, idemKey)
		prev, claimed, err := s.idem.Begin(ctx, key)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			return domain.OrderView{}, apperr.New(apperr.KindConflict, "a request with this Idempotency-Key is still in progress")
		case err != nil:
			s.log.Warn("idempotency store unavailable, continuing without it", "err", err)
			key = ""
		case !claimed:
			return s.replay(ctx, who, fp, prev)
		}
	}

	view, err := s.placeOrder(ctx, who, in)
	if key != "" {
		if err != nil {
			if rErr := s.idem.Release(ctx, key); rErr != nil {
				s.log.Warn("idempotency release failed", "err", rErr)
			}
		} else if cErr := s.idem.Complete(ctx, key, idempotency.Seal(fp, strconv.FormatInt(view.ID, 10))); cErr != nil {
			s.log.Warn("idempotency complete failed", "order_id", view.ID, "err", cErr)
		}
	}
	return view, err
}

func (s *Service) placeOrder(ctx context.Context, who *identity.Identity, in domain.PlaceOrderInput) (domain.OrderView, error) {
	lines := in.Lines()
	quote, err := pricing.Calculate(ctx, s.products, lines)
	if err != nil {
		return domain.OrderView{}, err
	}
	view, err := s.repo.CreateOrder(ctx, who.UserID, lines, quote.TotalCents)
	if err != nil {
		return domain.OrderView{}, err
	}

	s.log.Info("order placed", "order_id", view.ID, "user_id", who.UserID, "total", view.TotalAmountCents, "items", len(view.Items))
	s.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionOrderCreated,
		EntityID: orderEntity(view.ID),
		ActorID:  who.UserID,
		Data:     map[string]any{"total_amount": view.TotalAmountCents, "items": len(view.Items)},
	})
	return view, nil
}

func (s *Service) replay(ctx context.Context, who *identity.Identity, fp, stored string) (domain.OrderView, error) {
	prev, err := idempotency.Unseal(fp, stored)
	if errors.Is(err, idempotency.ErrMismatch) {
		return domain.OrderView{}, apperr.New(apperr.KindValidation, "Idempotency-Key was already used with a different cart")
	}
	if err != nil {
		return domain.OrderView{}, apperr.Internal(err)
	}
	id, err := strconv.ParseInt(prev, 10, 64)
	if err != nil {
		return domain.OrderView{}, apperr.Internal(fmt.Errorf("corrupt idempotency result %q: %w", prev, err))
	}
	s.log.Info("order replayed from idempotency key", "order_id", id, "user_id", who.UserID)
	return s.repo.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, who *identity.Identity) ([]domain.OrderView, error) {
	if who == nil {
		return nil, identity.ErrUnauthenticated
	}
	admin, err := s.gate.IsAdmin(ctx, who)
	if err != nil {
		return nil, err
	}
	if admin {
		return s.repo.GetOrders(ctx, nil)
	}
	uid := who.UserID
	return s.repo.GetOrders(ctx, &uid)
}

func (s *Service) GetOrder(ctx context.Context, who *identity.Identity, id int64) (domain.OrderView, error) {
	return s.visibleOrder(ctx, who, id)
}

// visibleOrder loads an order the caller may see. Orders belonging to someone else are
// reported as missing so ids cannot be probed.
func (s *Service) visibleOrder(ctx context.Context, who *identity.Identity, id int64) (domain.OrderView, error) {
	if who == nil {
		return domain.OrderView{}, identity.ErrUnauthenticated
	}
	view, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.OrderView{}, err
	}
	if view.OwnedBy(who.UserID) {
		return view, nil
	}
	admin, err := s.gate.IsAdmin(ctx, who)
	if err != nil {
		return domain.OrderView{}, err
	}
	if !admin {
		return domain.OrderView{}, domain.ErrOrderNotFound
	}
	return view, nil
}

func (s *Service) CreatePaymentIntent(ctx context.Context, who *identity.Identity, orderID int64) (domain.PaymentIntent, error) {
	view, err := s.visibleOrder(ctx, who, orderID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	switch view.Status {
	case domain.StatusPaid, domain.StatusFulfilled:
		return domain.PaymentIntent{}, domain.ErrAlreadyPaid
	case domain.StatusCancelled:
		return domain.PaymentIntent{}, domain.InvalidTransition(view.Status, domain.StatusPaid)
	}

	amount := pricing.ChargeAmount(view.TotalAmountCents)
	idemKey := fmt.Sprintf("order-%d", view.ID)

	if view.PaymentIntentRef != nil {
		existing, err := s.provider.GetIntent(ctx, *view.PaymentIntentRef)
		if err != nil {
			return domain.PaymentIntent{}, apperr.Wrap(apperr.KindInternal, err, "payment provider unavailable")
		}
		if existing.Status != payment.StatusCanceled && existing.AmountCents == amount {
			return toPaymentIntent(view.ID, existing), nil
		}
		idemKey += "-" + existing.Ref
	}

	intent, err := s.provider.CreateIntent(ctx, payment.CreateIntentRequest{
		AmountCents:    amount,
		Currency:       s.currency,
		Metadata:       map[string]string{"order_id": strconv.FormatInt(view.ID, 10), "user_id": view.UserID},
		IdempotencyKey: idemKey,
	})
	if err != nil {
		return domain.PaymentIntent{}, apperr.Wrap(apperr.KindInternal, err, "payment provider unavailable")
	}

	ref := intent.Ref
	if _, err := s.repo.UpdateOrderStatus(ctx, view.ID, domain.StatusPending, &ref); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return domain.PaymentIntent{}, s.lostRace(ctx, view.ID, domain.StatusPaid)
		}
		return domain.PaymentIntent{}, err
	}

	s.log.Info("payment intent created", "order_id", view.ID, "intent_id", ref, "amount", amount)
	s.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionIntentCreated,
		EntityID: orderEntity(view.ID),
		ActorID:  who.UserID,
		Data:     map[string]any{"intent_id": ref, "amount": amount},
	})
	return toPaymentIntent(view.ID, intent), nil
}

// ConfirmPayment marks the order paid only after the provider itself reports the intent
// succeeded for the expected amount.
func (s *Service) ConfirmPayment(ctx context.Context, who *identity.Identity, orderID int64, intentRef string) (domain.Order, error) {
	view, err := s.visibleOrder(ctx, who, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	switch view.Status {
	case domain.StatusPaid, domain.StatusFulfilled:
		return domain.Order{}, domain.ErrAlreadyPaid
	case domain.StatusCancelled:
		return domain.Order{}, domain.InvalidTransition(view.Status, domain.StatusPaid)
	}
	if view.PaymentIntentRef == nil || *view.PaymentIntentRef != intentRef {
		return domain.Order{}, apperr.New(apperr.KindPaymentIntentMismatch, "payment intent does not belong to this order")
	}

	intent, err := s.provider.GetIntent(ctx, intentRef)
	if err != nil {
		return domain.Order{}, apperr.Wrap(apperr.KindInternal, err, "payment provider unavailable")
	}
	if !intent.Succeeded() {
		return domain.Order{}, apperr.Newf(apperr.KindPaymentNotCompleted, "payment not completed: %s", intent.Status)
	}
	if err := checkPaidIntent(view.Order, intent); err != nil {
		s.log.Warn("payment intent does not match order", "order_id", view.ID, "intent_id", intent.Ref,
			"expected", pricing.ChargeAmount(view.TotalAmountCents), "got", intent.AmountCents, "err", err)
		return domain.Order{}, err
	}

	order, err := s.repo.TransitionStatus(ctx, view.ID, domain.StatusPending, domain.StatusPaid)
	if errors.Is(err, domain.ErrStatusConflict) {
		return domain.Order{}, s.lostRace(ctx, view.ID, domain.StatusPaid)
	}
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order paid", "order_id", order.ID, "intent_id", intentRef)
	s.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionPaymentConfirmed,
		EntityID: orderEntity(order.ID),
		ActorID:  who.UserID,
		Data:     map[string]any{"intent_id": intentRef, "amount": intent.AmountCents},
	})
	return order, nil
}

// lostRace explains a failed compare-and-set by looking at where the order ended up.
func (s *Service) lostRace(ctx context.Context, id int64, to domain.OrderStatus) error {
	current, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	if to == domain.StatusPaid && (current.Status == domain.StatusPaid || current.Status == domain.StatusFulfilled) {
		return domain.ErrAlreadyPaid
	}
	return domain.InvalidTransition(current.Status, to)
}

func (s *Service) History(ctx context.Context, who *identity.Identity, orderID int64) ([]audit.Entry, error) {
	if _, err := s.gate.RequireAdmin(ctx, who); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.audit.History(ctx, orderEntity(orderID), historyLimit)
}

// checkPaidIntent fails unless the intent charges exactly this order's amount and, when it
// carries an order id, names this order.
func checkPaidIntent(o domain.Order, intent payment.Intent) error {
	if intent.AmountCents != pricing.ChargeAmount(o.TotalAmountCents) {
		return apperr.New(apperr.KindPaymentIntentMismatch, "payment amount does not match order")
	}
	if oid, ok := intent.Metadata["order_id"]; ok && oid != strconv.FormatInt(o.ID, 10) {
		return apperr.New(apperr.KindPaymentIntentMismatch, "payment intent does not belong to this order")
	}
	return nil
}

func toPaymentIntent(orderID int64, in payment.Intent) domain.PaymentIntent {
	return domain.PaymentIntent{
		OrderID:         orderID,
		PaymentIntentID: in.Ref,
		ClientSecret:    in.ClientSecret,
		AmountCents:     in.AmountCents,
		Currency:        in.Currency,
	}
}

func orderEntity(id int64) string {
	return "order:" + strconv.FormatInt(id, 10)
}
