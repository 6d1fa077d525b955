package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Stripe implements Gateway on top of the Stripe API.  Each instance
// carries its own client; nothing is stored in package state.
type Stripe struct {
	api           *client.API
	currency      string
	webhookSecret string
}

// NewStripe builds a Stripe gateway.  backends may be nil to use the
// default API endpoints.
func NewStripe(secretKey, webhookSecret, currency string, backends *stripe.Backends) *Stripe {
	api := &client.API{}
	api.Init(secretKey, backends)
	return &Stripe{api: api, currency: currency, webhookSecret: webhookSecret}
}

func params(ctx context.Context, idempotencyKey string) stripe.Params {
	p := stripe.Params{Context: ctx}
	if idempotencyKey != "" {
		p.IdempotencyKey = stripe.String(idempotencyKey)
	}
	return p
}

func (s *Stripe) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	p := &stripe.CustomerParams{
		Params:   params(ctx, ""),
		Metadata: map[string]string{"user_id": strconv.FormatUint(req.UserID, 10)},
	}
	if req.Name != "" {
		p.Name = stripe.String(req.Name)
	}
	if req.Phone != "" {
		p.Phone = stripe.String(req.Phone)
	}
	if req.Email != "" {
		p.Email = stripe.String(req.Email)
	}
	c, err := s.api.Customers.New(p)
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	return c.ID, nil
}

func (s *Stripe) DeleteCustomer(ctx context.Context, customerID string) error {
	_, err := s.api.Customers.Del(customerID, &stripe.CustomerParams{Params: params(ctx, "")})
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

func (s *Stripe) DefaultPaymentMethod(ctx context.Context, customerID string) (string, error) {
	p := &stripe.CustomerParams{Params: params(ctx, "")}
	p.AddExpand("invoice_settings.default_payment_method")
	c, err := s.api.Customers.Get(customerID, p)
	if err != nil {
		return "", fmt.Errorf("get customer: %w", err)
	}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		return c.InvoiceSettings.DefaultPaymentMethod.ID, nil
	}
	if c.DefaultSource != nil {
		return c.DefaultSource.ID, nil
	}
	return "", nil
}

func holdMetadata(userID, tableID uint64, strategy string) map[string]string {
	return map[string]string{
		MetaUserID:   strconv.FormatUint(userID, 10),
		MetaTableID:  strconv.FormatUint(tableID, 10),
		MetaStrategy: strategy,
	}
}

func (s *Stripe) CreateHold(ctx context.Context, req HoldRequest) (Intent, error) {
	p := &stripe.PaymentIntentParams{
		Params:        params(ctx, req.IdempotencyKey),
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(s.currency),
		Customer:      stripe.String(req.CustomerID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Metadata:      holdMetadata(req.UserID, req.TableID, string(req.Strategy)),
	}
	if req.OffSession {
		p.PaymentMethod = stripe.String(req.PaymentMethodID)
		p.OffSession = stripe.Bool(true)
		p.Confirm = stripe.Bool(true)
	} else {
		p.ConfirmationMethod = stripe.String(string(stripe.PaymentIntentConfirmationMethodAutomatic))
		p.SetupFutureUsage = stripe.String(string(stripe.PaymentIntentSetupFutureUsageOffSession))
	}
	pi, err := s.api.PaymentIntents.New(p)
	if err != nil {
		return Intent{}, fmt.Errorf("create payment intent: %w", err)
	}
	return paymentIntent(pi), nil
}

func (s *Stripe) CreateSetup(ctx context.Context, req SetupRequest) (Intent, error) {
	si, err := s.api.SetupIntents.New(&stripe.SetupIntentParams{
		Params:   params(ctx, req.IdempotencyKey),
		Customer: stripe.String(req.CustomerID),
		Usage:    stripe.String(string(stripe.SetupIntentUsageOffSession)),
		Metadata: holdMetadata(req.UserID, req.TableID, "setup_then_hold"),
	})
	if err != nil {
		return Intent{}, fmt.Errorf("create setup intent: %w", err)
	}
	return setupIntent(si), nil
}

func (s *Stripe) CancelHold(ctx context.Context, intentID string) error {
	_, err := s.api.PaymentIntents.Cancel(intentID, &stripe.PaymentIntentCancelParams{Params: params(ctx, "")})
	if err != nil {
		return fmt.Errorf("cancel payment intent: %w", err)
	}
	return nil
}

func (s *Stripe) GetPaymentIntent(ctx context.Context, intentID string) (Intent, error) {
	pi, err := s.api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{Params: params(ctx, "")})
	if err != nil {
		return Intent{}, fmt.Errorf("get payment intent: %w", err)
	}
	return paymentIntent(pi), nil
}

func (s *Stripe) GetSetupIntent(ctx context.Context, intentID string) (Intent, error) {
	si, err := s.api.SetupIntents.Get(intentID, &stripe.SetupIntentParams{Params: params(ctx, "")})
	if err != nil {
		return Intent{}, fmt.Errorf("get setup intent: %w", err)
	}
	return setupIntent(si), nil
}

// ParseWebhook verifies the signature header and decodes the event.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "setup_intent.succeeded":
		var si stripe.SetupIntent
		if err := json.Unmarshal(ev.Data.Raw, &si); err != nil {
			return Event{}, fmt.Errorf("decode setup intent: %w", err)
		}
		out.Kind = EventSetupSucceeded
		out.IntentID = si.ID
		if si.PaymentMethod != nil {
			out.PaymentMethodID = si.PaymentMethod.ID
		}
	case "payment_intent.amount_capturable_updated", "payment_intent.succeeded",
		"payment_intent.canceled", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.IntentID = pi.ID
		if pi.PaymentMethod != nil {
			out.PaymentMethodID = pi.PaymentMethod.ID
		}
		switch ev.Type {
		case "payment_intent.amount_capturable_updated":
			out.Kind = EventHoldCapturable
		case "payment_intent.succeeded":
			out.Kind = EventCaptureSucceeded
		case "payment_intent.canceled":
			out.Kind = EventHoldCanceled
			out.PaymentMethodID = ""
		case "payment_intent.payment_failed":
			out.Kind = EventHoldFailed
			out.PaymentMethodID = ""
			out.FailureMessage = "payment_failed"
			if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
				out.FailureMessage = pi.LastPaymentError.Msg
			}
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return Event{}, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.Kind = EventRefunded
			out.IntentID = ch.PaymentIntent.ID
		}
	}
	return out, nil
}

func paymentIntent(pi *stripe.PaymentIntent) Intent {
	in := Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status), Metadata: pi.Metadata}
	if pi.PaymentMethod != nil {
		in.PaymentMethodID = pi.PaymentMethod.ID
	}
	return in
}

func setupIntent(si *stripe.SetupIntent) Intent {
	in := Intent{ID: si.ID, ClientSecret: si.ClientSecret, Status: string(si.Status), Metadata: si.Metadata}
	if si.PaymentMethod != nil {
		in.PaymentMethodID = si.PaymentMethod.ID
	}
	return in
}
