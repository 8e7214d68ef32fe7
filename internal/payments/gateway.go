// Package payments wraps the Stripe integration: intent creation on the way
// out, signed webhook callbacks on the way in. Callbacks are translated into
// state-machine transitions; the transition table itself lives with the
// machine, not here.
package payments

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/katinat-coffee/ordering-backend/internal/apperr"
	"github.com/katinat-coffee/ordering-backend/internal/auth"
	"github.com/katinat-coffee/ordering-backend/internal/orders"
	"github.com/katinat-coffee/ordering-backend/pkg/logger"
)

// IntentsAPI is the slice of the Stripe client the gateway uses.
// *paymentintent.Client satisfies it; tests substitute fakes.
type IntentsAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// OrderLookup is the ledger surface the gateway needs.
type OrderLookup interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	AttachPaymentIntent(ctx context.Context, orderID, intentID string) error
}

// TransitionDriver drives payment outcomes into the order state machine.
type TransitionDriver interface {
	ConfirmPayment(ctx context.Context, intentID string) (*orders.Order, error)
	FailPayment(ctx context.Context, intentID string) (*orders.Order, error)
}

// Intent is what the client needs to complete a payment.
type Intent struct {
	IntentID     string `json:"intentId"`
	ClientSecret string `json:"clientSecret"`
}

// Gateway adapts the external processor to the order core.
type Gateway struct {
	intents       IntentsAPI
	ledger        OrderLookup
	machine       TransitionDriver
	signingSecret string
	currency      string
	log           *logger.Logger
}

// New builds a Gateway talking to the live Stripe API.
func New(apiKey, signingSecret, currency string, ledger OrderLookup, machine TransitionDriver, log *logger.Logger) *Gateway {
	client := &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey}
	return NewWithIntents(client, signingSecret, currency, ledger, machine, log)
}

// NewWithIntents is New with an injectable intents client.
func NewWithIntents(intents IntentsAPI, signingSecret, currency string, ledger OrderLookup, machine TransitionDriver, log *logger.Logger) *Gateway {
	if log == nil {
		log = logger.Default()
	}
	return &Gateway{
		intents:       intents,
		ledger:        ledger,
		machine:       machine,
		signingSecret: signingSecret,
		currency:      currency,
		log:           log.WithComponent("payment_gateway"),
	}
}

// CreateIntent asks the processor for a payment intent over the order's
// total and records the intent reference on the order. One unresolved
// intent per order: a second request while one is pending is a conflict.
func (g *Gateway) CreateIntent(ctx context.Context, orderID string, actor orders.Actor) (*Intent, error) {
	o, err := g.ledger.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperr.NotFound("order not found")
	}
	if actor.Role != auth.RoleAdmin && o.UserID != actor.UserID {
		return nil, apperr.Unauthorized("not authorized to pay for this order")
	}
	if o.Total <= 0 {
		return nil, apperr.Validation("invalid amount %d: must be positive", o.Total)
	}
	if o.PaymentIntentID != "" {
		return nil, apperr.Conflict("order already has an active payment intent")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(o.Total),
		Currency: stripe.String(g.currency),
	}
	params.AddMetadata("order_id", o.OrderID)

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, apperr.Gateway(err, "payment processor unavailable")
	}

	if err := g.ledger.AttachPaymentIntent(ctx, o.OrderID, pi.ID); err != nil {
		return nil, err
	}

	g.log.Info("payment intent created", "order_id", o.OrderID, "intent_id", pi.ID)
	return &Intent{IntentID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// HandleCallback verifies a webhook payload and dispatches it by event kind.
// Verification fails closed: an unverified event is never processed. The
// order is located by the intent reference, never by anything embedded in
// the callback body. Events we don't model are logged and acknowledged so
// the processor stops retrying them.
func (g *Gateway) HandleCallback(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := webhook.ConstructEvent(payload, sigHeader, g.signingSecret)
	if err != nil {
		return apperr.SignatureInvalid(err)
	}

	switch string(event.Type) {
	case "payment_intent.succeeded":
		return g.applyOutcome(ctx, event, true)
	case "payment_intent.payment_failed":
		return g.applyOutcome(ctx, event, false)
	default:
		g.log.Info("unhandled webhook event", "type", string(event.Type))
		return nil
	}
}

func (g *Gateway) applyOutcome(ctx context.Context, event stripe.Event, succeeded bool) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		g.log.Warn("malformed payment intent payload", "event_id", event.ID, "error", err)
		return nil
	}

	var o *orders.Order
	var err error
	if succeeded {
		o, err = g.machine.ConfirmPayment(ctx, pi.ID)
	} else {
		o, err = g.machine.FailPayment(ctx, pi.ID)
	}

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		// Intent we never issued, or an order created outside this system.
		// Acknowledge so the processor does not retry forever.
		g.log.Warn("no order for payment intent", "intent_id", pi.ID)
		return nil
	case apperr.KindConflict:
		g.log.Warn("payment outcome conflicts with order state", "intent_id", pi.ID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	g.log.Info("payment outcome applied", "order_id", o.OrderID, "status", string(o.Status))
	return nil
}
