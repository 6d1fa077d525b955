package testutil

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/supdinner/tables/internal/gateway"
	"github.com/supdinner/tables/internal/model"
)

// Gateway is a scripted in-memory payment gateway.
type Gateway struct {
	mu sync.Mutex
	n  int

	// PaymentMethods maps customer id to its default payment method.
	PaymentMethods map[string]string
	// Intents holds every intent created or seeded, by id.
	Intents map[string]gateway.Intent
	// HoldStatus is the status returned for new holds (default
	// requires_capture).
	HoldStatus string
	// Events maps a signature to the event ParseWebhook returns for it.
	Events map[string]gateway.Event
	// Err, when set for an operation name, is returned by that operation.
	Err map[string]error

	Customers []string
	Deleted   []string
	Holds     []gateway.HoldRequest
	Cancelled []string
	Calls     []string
}

func NewGateway() *Gateway {
	return &Gateway{
		PaymentMethods: map[string]string{},
		Intents:        map[string]gateway.Intent{},
		Events:         map[string]gateway.Event{},
		Err:            map[string]error{},
	}
}

func (g *Gateway) call(op string) error {
	g.Calls = append(g.Calls, op)
	return g.Err[op]
}

func (g *Gateway) next(prefix string) string {
	g.n++
	return prefix + strconv.Itoa(g.n)
}

func (g *Gateway) CreateCustomer(_ context.Context, _ gateway.CustomerRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateCustomer"); err != nil {
		return "", err
	}
	id := g.next("cus_")
	g.Customers = append(g.Customers, id)
	return id, nil
}

func (g *Gateway) DeleteCustomer(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("DeleteCustomer"); err != nil {
		return err
	}
	g.Deleted = append(g.Deleted, id)
	return nil
}

func (g *Gateway) DefaultPaymentMethod(_ context.Context, customerID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("DefaultPaymentMethod"); err != nil {
		return "", err
	}
	return g.PaymentMethods[customerID], nil
}

func meta(userID, tableID uint64, strategy model.Strategy) map[string]string {
	return map[string]string{
		gateway.MetaUserID:   strconv.FormatUint(userID, 10),
		gateway.MetaTableID:  strconv.FormatUint(tableID, 10),
		gateway.MetaStrategy: string(strategy),
	}
}

func (g *Gateway) CreateHold(_ context.Context, req gateway.HoldRequest) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateHold"); err != nil {
		return gateway.Intent{}, err
	}
	if req.OffSession && req.PaymentMethodID == "" {
		return gateway.Intent{}, errors.New("off-session hold without payment method")
	}
	status := g.HoldStatus
	if status == "" {
		status = "requires_capture"
	}
	id := g.next("pi_")
	in := gateway.Intent{
		ID:              id,
		ClientSecret:    id + "_secret_test",
		Status:          status,
		PaymentMethodID: req.PaymentMethodID,
		Metadata:        meta(req.UserID, req.TableID, req.Strategy),
	}
	g.Holds = append(g.Holds, req)
	g.Intents[id] = in
	return in, nil
}

func (g *Gateway) CreateSetup(_ context.Context, req gateway.SetupRequest) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateSetup"); err != nil {
		return gateway.Intent{}, err
	}
	id := g.next("si_")
	in := gateway.Intent{
		ID:           id,
		ClientSecret: id + "_secret_test",
		Status:       "requires_payment_method",
		Metadata:     meta(req.UserID, req.TableID, model.StrategySetupThenHold),
	}
	g.Intents[id] = in
	return in, nil
}

func (g *Gateway) CancelHold(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CancelHold"); err != nil {
		return err
	}
	g.Cancelled = append(g.Cancelled, intentID)
	return nil
}

func (g *Gateway) get(op, id string) (gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call(op); err != nil {
		return gateway.Intent{}, err
	}
	in, ok := g.Intents[id]
	if !ok {
		return gateway.Intent{}, fmt.Errorf("no such intent: %s", id)
	}
	return in, nil
}

func (g *Gateway) GetPaymentIntent(_ context.Context, id string) (gateway.Intent, error) {
	return g.get("GetPaymentIntent", id)
}

func (g *Gateway) GetSetupIntent(_ context.Context, id string) (gateway.Intent, error) {
	return g.get("GetSetupIntent", id)
}

func (g *Gateway) ParseWebhook(_ []byte, signature string) (gateway.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ev, ok := g.Events[signature]
	if !ok {
		return gateway.Event{}, gateway.ErrInvalidSignature
	}
	return ev, nil
}

// SetIntent seeds or replaces an intent.
func (g *Gateway) SetIntent(in gateway.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Intents[in.ID] = in
}

// Called reports whether op was invoked.
func (g *Gateway) Called(op string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.Calls {
		if c == op {
			return true
		}
	}
	return false
}
