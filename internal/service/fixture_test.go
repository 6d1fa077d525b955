package service

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/config"
	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/testutil"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *testutil.Store
	gw       *testutil.Gateway
	disp     *testutil.Dispatcher
	cache    *testutil.Invalidator
	metrics  *Metrics
	ledger   *Ledger
	waitlist *Waitlist
	holds    *HoldManager
	recon    *Reconciler
	maint    *Maintenance
	catalog  *Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   testutil.NewStore(),
		gw:      testutil.NewGateway(),
		disp:    &testutil.Dispatcher{},
		cache:   &testutil.Invalidator{},
		metrics: NewMetrics(nil),
	}
	stores := Stores{Tables: f.store, Signups: f.store, Waitlists: f.store, Holds: f.store, Users: f.store, Cache: f.cache}
	log := zap.NewNop()
	windows := config.DefaultWindows()
	clock := func() time.Time { return testNow }

	f.ledger = NewLedger(stores, f.disp, f.metrics, log)
	f.ledger.now = clock
	f.waitlist = NewWaitlist(stores, f.disp, f.metrics, log)
	f.waitlist.now = clock
	f.holds = NewHoldManager(stores, f.gw, windows, f.metrics, log)
	f.holds.now = clock
	f.recon = NewReconciler(stores, f.gw, f.disp, f.metrics, log)
	f.recon.now = clock
	f.maint = NewMaintenance(stores, f.holds, windows, f.metrics, log)
	f.maint.now = clock
	f.catalog = NewCatalog(stores, windows, log)
	f.catalog.now = clock
	return f
}

func spots(n uint32) *uint32 { return &n }

// table stores a table with the event at testNow+in.
func (f *fixture) table(total, filled uint32, min *uint32, in time.Duration) uint64 {
	return f.store.PutTable(model.Table{
		Title:       "dinner",
		TotalSpots:  total,
		MinSpots:    min,
		SpotsFilled: filled,
		EventTime:   testNow.Add(in),
	})
}
