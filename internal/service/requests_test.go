package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/supdinner/tables/internal/model"
	"github.com/supdinner/tables/internal/testutil"
)

func TestSubmitTableRequest(t *testing.T) {
	disp := &testutil.Dispatcher{}
	r := NewTableRequests(disp, zap.NewNop())
	r.now = func() time.Time { return testNow }

	err := r.Submit(context.Background(), model.TableRequest{
		UserID: 4, Name: " Ana ", Phone: "555", Day: "Friday", Time: "19:00", Theme: "  ",
	})
	require.NoError(t, err)
	reqs := disp.TableRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Ana", reqs[0].Name)
	assert.Empty(t, reqs[0].Theme)
	assert.Equal(t, testNow, reqs[0].RequestedAt)
}

func TestSubmitTableRequestRejections(t *testing.T) {
	disp := &testutil.Dispatcher{}
	r := NewTableRequests(disp, zap.NewNop())
	ctx := context.Background()
	valid := model.TableRequest{UserID: 4, Name: "Ana", Phone: "555", Day: "Friday", Time: "19:00"}

	noUser := valid
	noUser.UserID = 0
	assert.Equal(t, KindValidation, KindOf(r.Submit(ctx, noUser)))

	noPhone := valid
	noPhone.Phone = " "
	assert.Equal(t, KindValidation, KindOf(r.Submit(ctx, noPhone)))

	noDay := valid
	noDay.Day = ""
	assert.Equal(t, KindValidation, KindOf(r.Submit(ctx, noDay)))
	assert.Empty(t, disp.TableRequests())

	disp.Err = errors.New("broker down")
	err := r.Submit(ctx, valid)
	assert.ErrorIs(t, err, ErrNotification)
	assert.Equal(t, KindExternal, KindOf(err))
}
