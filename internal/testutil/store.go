// Package testutil provides in-memory stand-ins for the MySQL stores, the
// payment gateway and the background dispatcher.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/repository"
)

// Store is a mutex-guarded in-memory implementation of every service
// store.  Its conditional writes follow the SQL repositories.
type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	nextID   uint64
	tables   map[uint64]*model.Table
	signups  map[uint64]model.Signup // keyed by user id
	waitlist []model.WaitlistEntry
	holds    []model.CollateralHold
	users    map[uint64]model.User
	tasks    map[string]uint64

	// Fail makes the named operation return the error once set.
	Fail map[string]error
}

func NewStore() *Store {
	return &Store{
		now:     time.Now,
		tables:  map[uint64]*model.Table{},
		signups: map[uint64]model.Signup{},
		users:   map[uint64]model.User{},
		tasks:   map[string]uint64{},
		Fail:    map[string]error{},
	}
}

func (s *Store) id() uint64 {
	s.nextID++
	return s.nextID
}

func (s *Store) fail(op string) error { return s.Fail[op] }

// PutTable stores t as given and returns its id.
func (s *Store) PutTable(t model.Table) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.tables[t.ID] = &t
	return t.ID
}

// PutUser stores u as given.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// PutSignup inserts a signup without touching capacity.
func (s *Store) PutSignup(userID, tableID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signups[userID] = model.Signup{ID: s.id(), UserID: userID, TableID: tableID, CreatedAt: s.now()}
}

// PutHold stores h and returns its id.
func (s *Store) PutHold(h model.CollateralHold) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = s.id()
	s.holds = append(s.holds, h)
	return h.ID
}

// Table returns a copy of the stored table.
func (s *Store) Table(id uint64) model.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[id]; ok {
		return *t
	}
	return model.Table{}
}

// Signups returns every signup ordered by id.
func (s *Store) Signups() []model.Signup {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Signup, 0, len(s.signups))
	for _, v := range s.signups {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Holds returns every hold in insertion order.
func (s *Store) Holds() []model.CollateralHold {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.CollateralHold(nil), s.holds...)
}

// Waitlist returns every waitlist entry in insertion order.
func (s *Store) Waitlist() []model.WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.WaitlistEntry(nil), s.waitlist...)
}

// User returns the stored user.
func (s *Store) User(id uint64) model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

// Tables

func (s *Store) GetTable(_ context.Context, id uint64) (model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetTable"); err != nil {
		return model.Table{}, err
	}
	t, ok := s.tables[id]
	if !ok {
		return model.Table{}, repository.ErrNotFound
	}
	return *t, nil
}

func (s *Store) CreateTable(_ context.Context, t model.Table) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	t.CreatedAt = s.now()
	s.tables[t.ID] = &t
	return t.ID, nil
}

func (s *Store) sortedTables(keep func(model.Table) bool) []model.Table {
	var out []model.Table
	for _, t := range s.tables {
		if keep(*t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EventTime.Before(out[j].EventTime)
	})
	return out
}

func (s *Store) ListUpcomingTables(_ context.Context, now time.Time, limit int) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedTables(func(t model.Table) bool { return t.EventTime.After(now) && !t.IsCancelled })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LockCandidates(_ context.Context, from, to time.Time) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("LockCandidates"); err != nil {
		return nil, err
	}
	return s.sortedTables(func(t model.Table) bool {
		return !t.IsLocked && t.EventTime.After(from) && t.EventTime.Before(to)
	}), nil
}

func (s *Store) SetLockState(_ context.Context, id uint64, cancelled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SetLockState"); err != nil {
		return false, err
	}
	t, ok := s.tables[id]
	if !ok || t.IsLocked {
		return false, nil
	}
	t.IsLocked = true
	t.IsCancelled = cancelled
	return true, nil
}

func (s *Store) DayOfTables(_ context.Context, from, to time.Time) ([]model.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedTables(func(t model.Table) bool {
		return t.IsLocked && !t.IsCancelled && !t.EventTime.Before(from) && t.EventTime.Before(to)
	}), nil
}

func (s *Store) ExpiredTableIDs(_ context.Context, before time.Time) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint64
	for _, t := range s.sortedTables(func(t model.Table) bool { return t.EventTime.Before(before) }) {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *Store) DeleteTables(_ context.Context, ids []uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteTables"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		if _, ok := s.tables[id]; ok {
			delete(s.tables, id)
			n++
		}
	}
	return n, nil
}

// Signups

func (s *Store) SignupForUser(_ context.Context, userID uint64) (model.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	su, ok := s.signups[userID]
	if !ok {
		return model.Signup{}, repository.ErrNotFound
	}
	return su, nil
}

func (s *Store) AddSignup(_ context.Context, userID, tableID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := s.signups[userID]; ok {
		return repository.ErrDuplicate
	}
	if t.IsLocked {
		return repository.ErrTableLocked
	}
	if t.SpotsFilled >= t.TotalSpots {
		return repository.ErrTableFull
	}
	s.signups[userID] = model.Signup{ID: s.id(), UserID: userID, TableID: tableID, CreatedAt: s.now()}
	t.SpotsFilled++
	return nil
}

func (s *Store) RemoveSignup(_ context.Context, userID, tableID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		return repository.ErrNotFound
	}
	if t.IsLocked {
		return repository.ErrTableLocked
	}
	su, ok := s.signups[userID]
	if !ok || su.TableID != tableID {
		return repository.ErrNotFound
	}
	delete(s.signups, userID)
	if t.SpotsFilled > 0 {
		t.SpotsFilled--
	}
	return nil
}

func (s *Store) UpsertSignup(_ context.Context, userID, tableID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertSignup"); err != nil {
		return false, err
	}
	t, ok := s.tables[tableID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if _, ok := s.signups[userID]; ok {
		return false, nil
	}
	if t.SpotsFilled >= t.TotalSpots {
		return false, repository.ErrTableFull
	}
	s.signups[userID] = model.Signup{ID: s.id(), UserID: userID, TableID: tableID, CreatedAt: s.now()}
	t.SpotsFilled++
	return true, nil
}

func (s *Store) SignupsForTable(_ context.Context, tableID uint64) ([]model.Signup, error) {
	var out []model.Signup
	for _, su := range s.Signups() {
		if su.TableID == tableID {
			out = append(out, su)
		}
	}
	return out, nil
}

func (s *Store) DeleteSignupsForTables(_ context.Context, ids []uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteSignupsForTables"); err != nil {
		return 0, err
	}
	set := idSet(ids)
	var n int64
	for u, su := range s.signups {
		if set[su.TableID] {
			delete(s.signups, u)
			n++
		}
	}
	return n, nil
}

// Waitlists

func (s *Store) AddWaitlistEntry(_ context.Context, userID, tableID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tableID]
	if !ok {
		return repository.ErrNotFound
	}
	if su, ok := s.signups[userID]; ok && su.TableID == tableID {
		return repository.ErrDuplicate
	}
	if t.SpotsFilled < t.TotalSpots {
		return repository.ErrTableNotFull
	}
	for _, w := range s.waitlist {
		if w.UserID == userID && w.TableID == tableID {
			return repository.ErrWaitlisted
		}
	}
	s.waitlist = append(s.waitlist, model.WaitlistEntry{ID: s.id(), UserID: userID, TableID: tableID, CreatedAt: s.now()})
	return nil
}

func (s *Store) RemoveWaitlistEntry(_ context.Context, userID, tableID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitlist = filter(s.waitlist, func(w model.WaitlistEntry) bool { return !(w.UserID == userID && w.TableID == tableID) })
	return nil
}

func (s *Store) WaitlistForTable(_ context.Context, tableID uint64) ([]model.WaitlistEntry, error) {
	var out []model.WaitlistEntry
	for _, w := range s.Waitlist() {
		if w.TableID == tableID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) Promote(_ context.Context, taskID string, tableID uint64) (repository.PromotionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Promote"); err != nil {
		return repository.PromotionResult{}, err
	}
	if _, ok := s.tasks[taskID]; ok {
		return repository.PromotionResult{}, repository.ErrDuplicate
	}
	if _, ok := s.tables[tableID]; !ok {
		return repository.PromotionResult{}, repository.ErrNotFound
	}
	s.tasks[taskID] = tableID

	idx := -1
	for i, w := range s.waitlist {
		if w.TableID != tableID {
			continue
		}
		if idx == -1 || w.CreatedAt.Before(s.waitlist[idx].CreatedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return repository.PromotionResult{}, nil
	}
	entry := s.waitlist[idx]
	s.waitlist = append(s.waitlist[:idx:idx], s.waitlist[idx+1:]...)

	var out repository.PromotionResult
	if prior, ok := s.signups[entry.UserID]; ok {
		if prior.TableID == tableID {
			return out, nil
		}
		delete(s.signups, entry.UserID)
		if pt, ok := s.tables[prior.TableID]; ok && pt.SpotsFilled > 0 {
			pt.SpotsFilled--
		}
		out.VacatedTableID = prior.TableID
	}
	s.signups[entry.UserID] = model.Signup{ID: s.id(), UserID: entry.UserID, TableID: tableID, CreatedAt: s.now()}
	out.Promoted = true
	out.UserID = entry.UserID
	return out, nil
}

func (s *Store) DeleteWaitlistsForTables(_ context.Context, ids []uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(ids)
	before := len(s.waitlist)
	s.waitlist = filter(s.waitlist, func(w model.WaitlistEntry) bool { return !set[w.TableID] })
	return int64(before - len(s.waitlist)), nil
}

func (s *Store) DeletePromotionTasksForTables(_ context.Context, ids []uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(ids)
	var n int64
	for task, table := range s.tasks {
		if set[table] {
			delete(s.tasks, task)
			n++
		}
	}
	return n, nil
}

// Holds

func (s *Store) CreateHold(_ context.Context, h model.CollateralHold) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateHold"); err != nil {
		return 0, err
	}
	h.ID = s.id()
	h.CreatedAt = s.now()
	h.UpdatedAt = h.CreatedAt
	s.holds = append(s.holds, h)
	return h.ID, nil
}

func (s *Store) latest(match func(model.CollateralHold) bool) (model.CollateralHold, error) {
	for i := len(s.holds) - 1; i >= 0; i-- {
		if match(s.holds[i]) {
			return s.holds[i], nil
		}
	}
	return model.CollateralHold{}, repository.ErrNotFound
}

func (s *Store) LatestHold(_ context.Context, userID, tableID uint64) (model.CollateralHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(h model.CollateralHold) bool { return h.UserID == userID && h.TableID == tableID })
}

func (s *Store) HoldByPaymentIntent(_ context.Context, intentID string) (model.CollateralHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(h model.CollateralHold) bool { return h.PaymentIntentID != "" && h.PaymentIntentID == intentID })
}

func (s *Store) HoldBySetupIntent(_ context.Context, intentID string) (model.CollateralHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(h model.CollateralHold) bool { return h.SetupIntentID != "" && h.SetupIntentID == intentID })
}

func (s *Store) UpdateHold(_ context.Context, id uint64, from model.HoldStatus, upd model.HoldUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.holds {
		h := &s.holds[i]
		if h.ID != id {
			continue
		}
		if h.Status != from {
			return false, nil
		}
		h.Status = upd.Status
		if upd.PaymentMethodRef != "" {
			h.PaymentMethodRef = upd.PaymentMethodRef
		}
		if upd.ErrorMessage != "" {
			h.ErrorMessage = upd.ErrorMessage
		}
		h.UpdatedAt = s.now()
		return true, nil
	}
	return false, nil
}

func (s *Store) DeleteHoldsForTables(_ context.Context, ids []uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := idSet(ids)
	before := len(s.holds)
	s.holds = filter(s.holds, func(h model.CollateralHold) bool { return !set[h.TableID] })
	return int64(before - len(s.holds)), nil
}

// Users

func (s *Store) GetUser(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) SetGatewayCustomer(_ context.Context, userID uint64, customerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	if u.GatewayCustomerID == "" {
		u.GatewayCustomerID = customerID
		s.users[userID] = u
	}
	return u.GatewayCustomerID, nil
}

func (s *Store) UpsertProfile(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		cur = model.User{ID: u.ID, CreatedAt: s.now()}
	}
	cur.FirstName, cur.PhoneNumber, cur.Email = u.FirstName, u.PhoneNumber, u.Email
	cur.UpdatedAt = s.now()
	s.users[u.ID] = cur
	return nil
}

func idSet(ids []uint64) map[uint64]bool {
	set := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}
