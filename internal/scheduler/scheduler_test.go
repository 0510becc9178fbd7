package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewSchedulerRejectsNonPositiveInterval(t *testing.T) {
	_, err := NewScheduler(0, func(context.Context, int) error { return nil }, quietLogger())
	assert.Error(t, err)
}

func TestSchedulerRunsAtStartupAndOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles []int
	var calls atomic.Int32
	job := func(_ context.Context, cycle int) error {
		cycles = append(cycles, cycle)
		if calls.Add(1) == 3 {
			cancel()
		}
		return errors.New("keeps going")
	}

	s, err := NewScheduler(10*time.Millisecond, job, quietLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, []int{1, 2, 3}, cycles)
}

func TestSchedulerSkipsJobWhenAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s, err := NewScheduler(time.Hour, func(context.Context, int) error {
		calls.Add(1)
		return nil
	}, quietLogger())
	require.NoError(t, err)

	require.NoError(t, s.Run(ctx))
	assert.Zero(t, calls.Load())
}
