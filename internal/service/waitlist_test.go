package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supdinner/tables/internal/model"
)

func TestLeaveThenPromoteKeepsCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.table(4, 4, spots(2), 72*time.Hour)
	for u := uint64(1); u <= 4; u++ {
		f.store.PutSignup(u, tid)
	}

	require.NoError(t, f.waitlist.Join(ctx, tid, 10))
	require.NoError(t, f.ledger.Leave(ctx, tid, 2))
	assert.Equal(t, uint32(3), f.store.Table(tid).SpotsFilled)
	require.Equal(t, []uint64{tid}, f.disp.Promotions)

	res, err := f.waitlist.PromoteNext(ctx, "task-1", tid)
	require.NoError(t, err)
	assert.True(t, res.Promoted)
	assert.Equal(t, uint64(10), res.UserID)
	assert.Zero(t, res.VacatedTableID)

	su, err := f.store.SignupForUser(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, tid, su.TableID)
	assert.Empty(t, f.store.Waitlist())
	assert.Equal(t, uint32(3), f.store.Table(tid).SpotsFilled)

	events := f.disp.SignupEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.SourcePromotion, events[0].Source)
}

func TestJoinWaitlistRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	open := f.table(4, 1, nil, 72*time.Hour)
	full := f.table(2, 2, nil, 72*time.Hour)
	f.store.PutSignup(1, full)
	f.store.PutSignup(2, full)

	assert.ErrorIs(t, f.waitlist.Join(ctx, open, 5), ErrTableNotFull)
	assert.ErrorIs(t, f.waitlist.Join(ctx, full, 1), ErrAlreadySignedUp)
	require.NoError(t, f.waitlist.Join(ctx, full, 5))
	assert.ErrorIs(t, f.waitlist.Join(ctx, full, 5), ErrAlreadyWaitlisted)
	assert.ErrorIs(t, f.waitlist.Join(ctx, 999, 5), ErrTableNotFound)
	assert.Len(t, f.store.Waitlist(), 1)
}

func TestLeaveWaitlistIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	full := f.table(1, 1, nil, 72*time.Hour)
	require.NoError(t, f.waitlist.Join(ctx, full, 5))

	require.NoError(t, f.waitlist.Leave(ctx, full, 5))
	require.NoError(t, f.waitlist.Leave(ctx, full, 5))
	assert.Empty(t, f.store.Waitlist())
}

func TestPromoteNextOrderAndIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tid := f.table(1, 1, nil, 72*time.Hour)
	require.NoError(t, f.waitlist.Join(ctx, tid, 5))
	require.NoError(t, f.waitlist.Join(ctx, tid, 6))

	res, err := f.waitlist.PromoteNext(ctx, "task-a", tid)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), res.UserID)

	again, err := f.waitlist.PromoteNext(ctx, "task-a", tid)
	require.NoError(t, err)
	assert.False(t, again.Promoted)

	entries, err := f.waitlist.Entries(ctx, tid)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint64(6), entries[0].UserID)
}

func TestPromoteMovesPriorSignupWithoutCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.table(2, 2, nil, 72*time.Hour)
	b := f.table(2, 2, nil, 96*time.Hour)
	f.store.PutSignup(1, a)
	f.store.PutSignup(2, a)
	f.store.PutSignup(3, b)
	f.store.PutSignup(4, b)
	require.NoError(t, f.waitlist.Join(ctx, a, 3))
	require.NoError(t, f.waitlist.Join(ctx, b, 9))

	res, err := f.waitlist.PromoteNext(ctx, "", a)
	require.NoError(t, err)
	assert.True(t, res.Promoted)
	assert.Equal(t, b, res.VacatedTableID)

	su, err := f.store.SignupForUser(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, a, su.TableID)
	assert.Equal(t, uint32(1), f.store.Table(b).SpotsFilled)

	// b's waitlist is not promoted as part of the same call.
	entries, err := f.waitlist.Entries(ctx, b)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPromoteNextEmptyWaitlist(t *testing.T) {
	f := newFixture(t)
	tid := f.table(2, 1, nil, 72*time.Hour)

	res, err := f.waitlist.PromoteNext(context.Background(), "t", tid)
	require.NoError(t, err)
	assert.False(t, res.Promoted)
	assert.Empty(t, f.disp.SignupEvents())
}
