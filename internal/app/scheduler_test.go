package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/internal/app"
	"github.com/storify-asia/storify/pkg/logger"
)

type expirer struct{ mock.Mock }

func (e *expirer) ExpireStale(ctx context.Context, batch int) (int, error) {
	args := e.Called(batch)
	return args.Int(0), args.Error(1)
}

func TestSchedulerExpirePayments(t *testing.T) {
	t.Parallel()

	exp := &expirer{}
	exp.On("ExpireStale", 50).Return(3, nil).Once()
	exp.On("ExpireStale", 50).Return(0, errors.New("db down")).Once()

	s := app.NewScheduler(exp, "@every 5m", 50, logger.Nop())

	n, err := s.ExpirePayments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = s.ExpirePayments(context.Background())
	assert.EqualError(t, err, "db down")
	exp.AssertExpectations(t)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	t.Parallel()
	s := app.NewScheduler(&expirer{}, "every now and then", 10, logger.Nop())
	assert.Error(t, s.Start())
}

func TestSchedulerStartStop(t *testing.T) {
	t.Parallel()
	s := app.NewScheduler(&expirer{}, "@every 1h", 10, logger.Nop())
	require.NoError(t, s.Start())
	s.Stop(context.Background())
}
