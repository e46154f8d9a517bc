package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/strrl/sft-forge/internal/record"
)

var ErrRetriesExhausted = errors.New("retries exhausted")

type RetryConfig struct {
	MaxAttempts int
	// BaseDelay is the first backoff; each further retry doubles it.
	BaseDelay time.Duration
	// Jitter adds a random [0, Jitter) to every backoff.
	Jitter time.Duration
	// Interval is the pause enforced before every request.
	Interval time.Duration
}

// Retrier calls a Completer with bounded exponential backoff and a fixed
// pace between requests.
type Retrier struct {
	completer Completer
	cfg       RetryConfig
	pacer     *rate.Limiter
	logger    *zap.Logger
}

func NewRetrier(completer Completer, cfg RetryConfig, logger *zap.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Retrier{
		completer: completer,
		cfg:       cfg,
		pacer:     newPacer(cfg.Interval),
		logger:    logger,
	}
}

func newPacer(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Complete returns the model reply. Once MaxAttempts calls have failed it
// returns "" and an error wrapping ErrRetriesExhausted; a cancelled context
// is returned as is.
func (r *Retrier) Complete(ctx context.Context, messages []record.Message, opts Options) (string, error) {
	var (
		reply   string
		attempt int
	)

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempt++

		if err := r.pacer.Wait(ctx); err != nil {
			return err
		}

		out, err := r.completer.Chat(ctx, messages, opts)
		if err == nil {
			reply = out
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Warn("chat completion attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Error(err))

		return retry.RetryableError(err)
	})

	if err == nil {
		return reply, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
}

func (r *Retrier) backoff() retry.Backoff {
	var b retry.Backoff
	if r.cfg.BaseDelay > 0 {
		b = retry.NewExponential(r.cfg.BaseDelay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	}

	if r.cfg.Jitter > 0 {
		b = withAdditiveJitter(r.cfg.Jitter, b)
	}

	return retry.WithMaxRetries(uint64(r.cfg.MaxAttempts-1), b)
}

func withAdditiveJitter(j time.Duration, next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		val, stop := next.Next()
		if stop {
			return 0, true
		}
		return val + time.Duration(rand.Int64N(int64(j))), false
	})
}
