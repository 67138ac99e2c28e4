package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-scheduler/internal/logging"
)

type purgerStub struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   atomic.Int32
}

func (p *purgerStub) DeleteEventsEndedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.calls.Add(1)
	p.cutoff = cutoff
	return p.deleted, p.err
}

type optimizerStub struct {
	err   error
	calls int
}

func (o *optimizerStub) Optimize(ctx context.Context) error {
	o.calls++
	return o.err
}

func TestRunner_RunOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	purger := &purgerStub{deleted: 3}
	optimizer := &optimizerStub{}
	runner := NewRunner(purger, optimizer, 30*24*time.Hour, func() time.Time { return now }, logging.Discard())

	result, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.EventsDeleted)
	assert.Equal(t, time.Date(2024, time.May, 2, 12, 0, 0, 0, time.UTC), result.Cutoff)
	assert.Equal(t, result.Cutoff, purger.cutoff)
	assert.Equal(t, 1, optimizer.calls)
}

func TestRunner_RunOnce_Errors(t *testing.T) {
	t.Parallel()

	purger := &purgerStub{err: errors.New("locked")}
	optimizer := &optimizerStub{}
	runner := NewRunner(purger, optimizer, time.Hour, nil, logging.Discard())

	_, err := runner.RunOnce(context.Background())
	assert.ErrorContains(t, err, "locked")
	assert.Zero(t, optimizer.calls)

	// Optimisation failures are tolerated.
	ok := NewRunner(&purgerStub{}, &optimizerStub{err: errors.New("busy")}, time.Hour, nil, logging.Discard())
	_, err = ok.RunOnce(context.Background())
	assert.NoError(t, err)

	_, err = NewRunner(&purgerStub{}, nil, 0, nil, logging.Discard()).RunOnce(context.Background())
	assert.Error(t, err)
	_, err = NewRunner(nil, nil, time.Hour, nil, logging.Discard()).RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunner_Start(t *testing.T) {
	t.Parallel()

	purger := &purgerStub{}
	runner := NewRunner(purger, nil, time.Hour, nil, logging.Discard())

	assert.Error(t, runner.Start(context.Background(), "not a schedule"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, runner.Start(ctx, "@every 1s"))
	assert.Error(t, runner.Start(ctx, "@every 1s"), "second start is rejected")

	assert.Eventually(t, func() bool { return purger.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)
	runner.Stop()
	runner.Stop()
}
