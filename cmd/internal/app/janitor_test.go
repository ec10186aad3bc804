package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingPurger struct {
	calls atomic.Int64
	err   error
}

func (p *countingPurger) PurgeExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, p.err
}

func TestStartJanitor_RunsOnSchedule(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := &countingPurger{}

	stop, err := StartJanitor(log, p, 20*time.Millisecond)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	stop()
	after := p.calls.Load()
	time.Sleep(80 * time.Millisecond)
	require.LessOrEqual(t, p.calls.Load(), after+1)
}

func TestStartJanitor_KeepsRunningAfterFailure(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := &countingPurger{err: errors.New("db down")}

	stop, err := StartJanitor(log, p, 20*time.Millisecond)
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestStartJanitor_Rejects(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := StartJanitor(log, nil, time.Minute)
	require.Error(t, err)

	_, err = StartJanitor(log, &countingPurger{}, 0)
	require.Error(t, err)
}
