package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strrl/sft-forge/internal/record"
)

type scriptedCompleter struct {
	calls   int
	replies []string
	errs    []error
}

func (s *scriptedCompleter) Chat(ctx context.Context, messages []record.Message, opts Options) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("unexpected call")
}

func TestRetrierSucceedsAfterFailures(t *testing.T) {
	fake := &scriptedCompleter{
		errs:    []error{errors.New("boom"), ErrNoChoices, nil},
		replies: []string{"", "", "ok"},
	}
	r := NewRetrier(fake, RetryConfig{MaxAttempts: 3}, nil)

	reply, err := r.Complete(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
	assert.Equal(t, 3, fake.calls)
}

func TestRetrierStopsAtMaxAttempts(t *testing.T) {
	cause := errors.New("upstream down")
	fake := &scriptedCompleter{errs: []error{cause, cause, cause, cause, cause}}
	r := NewRetrier(fake, RetryConfig{MaxAttempts: 3}, nil)

	reply, err := r.Complete(context.Background(), nil, Options{})
	assert.Empty(t, reply)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, fake.calls)
}

func TestRetrierSingleAttempt(t *testing.T) {
	fake := &scriptedCompleter{errs: []error{errors.New("x"), errors.New("y")}}
	r := NewRetrier(fake, RetryConfig{MaxAttempts: 0}, nil)

	_, err := r.Complete(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, fake.calls)
}

func TestRetrierContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &scriptedCompleter{replies: []string{"never"}}
	r := NewRetrier(fake, RetryConfig{MaxAttempts: 3}, nil)

	_, err := r.Complete(ctx, nil, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Zero(t, fake.calls)
}

func TestRetrierBackoffGrows(t *testing.T) {
	r := NewRetrier(nil, RetryConfig{MaxAttempts: 4, BaseDelay: time.Second}, nil)
	b := r.backoff()

	var waits []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		waits = append(waits, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, waits)
}

func TestRetrierJitterIsAdditive(t *testing.T) {
	r := NewRetrier(nil, RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Jitter: time.Second}, nil)
	b := r.backoff()

	first, stop := b.Next()
	require.False(t, stop)
	assert.GreaterOrEqual(t, first, time.Second)
	assert.Less(t, first, 2*time.Second)

	second, stop := b.Next()
	require.False(t, stop)
	assert.GreaterOrEqual(t, second, 2*time.Second)
	assert.Less(t, second, 3*time.Second)

	_, stop = b.Next()
	assert.True(t, stop)
}
