package testutil

import (
	"context"
	"sync"

	"github.com/supdinner/tables/internal/model"
)

// Dispatcher records dispatched work instead of running it.
type Dispatcher struct {
	mu         sync.Mutex
	Promotions []uint64
	Signups    []model.SignupEvent
	Requests   []model.TableRequest
	Err        error
}

func (d *Dispatcher) DispatchPromotion(_ context.Context, tableID uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Promotions = append(d.Promotions, tableID)
	return nil
}

func (d *Dispatcher) PublishSignup(_ context.Context, ev model.SignupEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Signups = append(d.Signups, ev)
	return nil
}

func (d *Dispatcher) PublishTableRequest(_ context.Context, req model.TableRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return d.Err
	}
	d.Requests = append(d.Requests, req)
	return nil
}

// TableRequests returns a copy of the published table requests.
func (d *Dispatcher) TableRequests() []model.TableRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.TableRequest(nil), d.Requests...)
}

// SignupEvents returns a copy of the published signup events.
func (d *Dispatcher) SignupEvents() []model.SignupEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.SignupEvent(nil), d.Signups...)
}

// Invalidator counts cache invalidations.
type Invalidator struct {
	mu    sync.Mutex
	calls int
}

func (i *Invalidator) Invalidate(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	return nil
}

// Calls returns how many times Invalidate ran.
func (i *Invalidator) Calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}
