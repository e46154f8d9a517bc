package ai

import (
	"context"
	"time"

	"github.com/strrl/sft-forge/internal/record"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Options are the sampling parameters of a single request. A zero Model
// falls back to the client's model.
type Options struct {
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

type Completer interface {
	Chat(ctx context.Context, messages []record.Message, opts Options) (string, error)
}

// Caller sends one prompt with retries. *Retrier implements it.
type Caller interface {
	Complete(ctx context.Context, messages []record.Message, opts Options) (string, error)
}

// Profile is the request shape and pacing one procedure uses.
type Profile struct {
	Options Options
	Retry   RetryConfig
}
