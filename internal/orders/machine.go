package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
	"github.com/katinat-coffee/ordering-backend/internal/auth"
	"github.com/katinat-coffee/ordering-backend/internal/mailq"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

// Actor is the caller requesting a transition.
type Actor struct {
	UserID  string
	Role    auth.Role
	StoreID string // set for staff
}

// Notifier receives a fan-out event for every committed transition.
type Notifier interface {
	OrderStatusChanged(orderID, status string)
}

// MailQueue enqueues best-effort customer emails.
type MailQueue interface {
	Enqueue(ctx context.Context, msg mailq.Message) error
}

// Metrics counts committed transitions.
type Metrics interface {
	TransitionApplied(ctx context.Context, status string) error
}

// Machine is the single transition function for order state. Customer
// cancels, staff updates and payment callbacks all go through the same
// read-validate-commit cycle, so the transition table exists once.
//
// A commit is a version-guarded write; a losing concurrent writer re-reads
// and re-validates, and surfaces a conflict when the new state makes the
// transition illegal.
type Machine struct {
	ledger      *Ledger
	notifier    Notifier
	mail        MailQueue
	metrics     Metrics
	log         *logger.Logger
	maxAttempts int
}

// NewMachine wires the transition function. notifier, mail and metrics may
// be nil; side effects are skipped for absent collaborators.
func NewMachine(ledger *Ledger, notifier Notifier, mail MailQueue, metrics Metrics, log *logger.Logger) *Machine {
	if log == nil {
		log = logger.Default()
	}
	return &Machine{
		ledger:      ledger,
		notifier:    notifier,
		mail:        mail,
		metrics:     metrics,
		log:         log.WithComponent("order_machine"),
		maxAttempts: 3,
	}
}

// staffTargets are the forward statuses a staff/admin status update may
// request. Everything else goes through a dedicated entry point or is
// rejected.
var staffTargets = map[Status]bool{
	StatusPreparing:  true,
	StatusReady:      true,
	StatusDelivering: true,
	StatusCompleted:  true,
}

// Cancel moves a pending or confirmed order to cancelled. Allowed for the
// owning customer or an admin.
func (m *Machine) Cancel(ctx context.Context, orderID string, actor Actor) (*Order, error) {
	load := func(ctx context.Context) (*Order, error) {
		return m.ledger.Get(ctx, orderID)
	}
	decide := func(o *Order) (decision, error) {
		if actor.Role != auth.RoleAdmin && o.UserID != actor.UserID {
			return decision{}, apperr.Unauthorized("not authorized to cancel this order")
		}
		if o.Status != StatusPending && o.Status != StatusConfirmed {
			return decision{}, apperr.Conflict("order cannot be cancelled: expected pending or confirmed, found %s", o.Status)
		}
		return decision{next: StatusCancelled, payment: o.PaymentStatus}, nil
	}
	return m.run(ctx, load, decide)
}

// Advance applies a staff/admin forward transition (preparing, ready,
// delivering, completed). Staff must belong to the order's store.
func (m *Machine) Advance(ctx context.Context, orderID string, target Status, actor Actor) (*Order, error) {
	if _, ok := ParseStatus(string(target)); !ok {
		return nil, apperr.Validation("unrecognized status %q", string(target))
	}
	if !staffTargets[target] {
		return nil, apperr.Conflict("status %s is not a valid staff transition target", target)
	}

	load := func(ctx context.Context) (*Order, error) {
		return m.ledger.Get(ctx, orderID)
	}
	decide := func(o *Order) (decision, error) {
		switch actor.Role {
		case auth.RoleAdmin:
		case auth.RoleStaff:
			if o.StoreID == "" || actor.StoreID != o.StoreID {
				return decision{}, apperr.Unauthorized("not assigned to this order's store")
			}
		default:
			return decision{}, apperr.Unauthorized("only staff or admins can update order status")
		}
		if o.Status.Terminal() {
			return decision{}, apperr.Conflict("order is %s and cannot change status", o.Status)
		}
		if target == StatusDelivering && o.Fulfillment != FulfillmentDelivery {
			return decision{}, apperr.Conflict("delivering applies only to delivery orders")
		}
		return decision{next: target, payment: o.PaymentStatus}, nil
	}
	return m.run(ctx, load, decide)
}

// ConfirmPayment drives the order referenced by the payment intent to
// confirmed/paid. A repeat invocation for an already confirmed order is a
// no-op, which is what makes processor retries safe.
func (m *Machine) ConfirmPayment(ctx context.Context, intentID string) (*Order, error) {
	load := func(ctx context.Context) (*Order, error) {
		return m.ledger.FindByPaymentIntent(ctx, intentID)
	}
	decide := func(o *Order) (decision, error) {
		if o.Status == StatusConfirmed && o.PaymentStatus == PaymentPaid {
			return decision{next: StatusConfirmed, payment: PaymentPaid}, nil
		}
		if o.Status != StatusPending {
			return decision{}, apperr.Conflict("payment succeeded for order in status %s", o.Status)
		}
		return decision{next: StatusConfirmed, payment: PaymentPaid}, nil
	}
	return m.run(ctx, load, decide)
}

// FailPayment drives the order referenced by the payment intent to
// payment_failed/failed. Idempotent like ConfirmPayment.
func (m *Machine) FailPayment(ctx context.Context, intentID string) (*Order, error) {
	load := func(ctx context.Context) (*Order, error) {
		return m.ledger.FindByPaymentIntent(ctx, intentID)
	}
	decide := func(o *Order) (decision, error) {
		if o.Status == StatusPaymentFailed && o.PaymentStatus == PaymentFailed {
			return decision{next: StatusPaymentFailed, payment: PaymentFailed}, nil
		}
		if o.Status != StatusPending {
			return decision{}, apperr.Conflict("payment failed for order in status %s", o.Status)
		}
		return decision{next: StatusPaymentFailed, payment: PaymentFailed}, nil
	}
	return m.run(ctx, load, decide)
}

type decision struct {
	next    Status
	payment PaymentStatus
}

// run is the read-validate-commit cycle shared by every entry point.
func (m *Machine) run(ctx context.Context, load func(context.Context) (*Order, error), decide func(*Order) (decision, error)) (*Order, error) {
	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		o, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if o == nil {
			return nil, apperr.NotFound("order not found")
		}

		d, err := decide(o)
		if err != nil {
			return nil, err
		}

		// Already in the decided state: duplicate request, nothing to commit.
		if d.next == o.Status && d.payment == o.PaymentStatus {
			return o, nil
		}

		err = m.ledger.CommitTransition(ctx, o, d.next, d.payment)
		if errors.Is(err, ErrVersionConflict) {
			m.log.Debug("lost transition race, retrying", "order_id", o.OrderID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		m.afterCommit(ctx, o)
		return o, nil
	}
	return nil, apperr.Conflict("order is being modified concurrently, retry")
}

// afterCommit runs the side effects of a durably committed transition.
// All of them are best-effort: a failure here is logged, never propagated,
// and never rolls back the transition.
func (m *Machine) afterCommit(ctx context.Context, o *Order) {
	if m.notifier != nil {
		m.notifier.OrderStatusChanged(o.OrderID, string(o.Status))
	}

	if m.metrics != nil {
		if err := m.metrics.TransitionApplied(ctx, string(o.Status)); err != nil {
			m.log.Warn("metric emission failed", "order_id", o.OrderID, "error", err)
		}
	}

	if m.mail == nil || o.CustomerEmail == "" {
		return
	}
	var subject, body string
	switch o.Status {
	case StatusConfirmed:
		subject = "Payment Successful - Katinat Coffee"
		body = fmt.Sprintf("Your payment for order #%s has been successfully processed. Thank you for your order!", o.OrderID)
	case StatusCompleted:
		subject = "Your Katinat Coffee Order is Complete"
		body = fmt.Sprintf("Your order #%s has been completed. Thank you for choosing Katinat Coffee!", o.OrderID)
	case StatusPaymentFailed:
		subject = "Payment Failed - Katinat Coffee"
		body = fmt.Sprintf("Your payment for order #%s has failed. Please try again or contact customer support.", o.OrderID)
	default:
		return
	}
	msg := mailq.Message{To: o.CustomerEmail, Subject: subject, Body: body, OrderID: o.OrderID}
	if err := m.mail.Enqueue(ctx, msg); err != nil {
		m.log.Warn("mail enqueue failed", "order_id", o.OrderID, "error", err)
	}
}
