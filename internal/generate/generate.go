// Package generate builds training records by prompting a chat model with
// the scenario tables and saving the replies as JSON lines.
package generate

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/ai"
	"github.com/strrl/sft-forge/internal/dataset"
	"github.com/strrl/sft-forge/internal/record"
)

var ErrMalformedReply = errors.New("malformed reply")

// Env is the runtime shared by every generator.
type Env struct {
	Caller ai.Caller
	Logger *zap.Logger
	Rand   *rand.Rand
	OutDir string
	RunID  string

	// Rest blocks between batches. Nil sleeps on a timer.
	Rest func(ctx context.Context, d time.Duration) error
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) rand() *rand.Rand {
	if e.Rand == nil {
		e.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return e.Rand
}

func (e *Env) path(name string) string {
	return filepath.Join(e.OutDir, name)
}

func (e *Env) rest(ctx context.Context, d time.Duration) error {
	if e.Rest != nil {
		return e.Rest(ctx, d)
	}
	return Sleep(ctx, d)
}

func (e *Env) checkpointer(every int, name func(int) string) *dataset.Checkpointer {
	return &dataset.Checkpointer{Every: every, Name: name, Logger: e.logger()}
}

func (e *Env) meta(kind string) *record.Metadata {
	return &record.Metadata{RunID: e.RunID, Type: kind}
}

// ask returns the model reply. ok is false when the item should be skipped;
// err is only set when the run itself must stop.
func (e *Env) ask(ctx context.Context, messages []record.Message, opts ai.Options) (reply string, ok bool, err error) {
	reply, err = e.Caller.Complete(ctx, messages, opts)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		e.logger().Warn("generation failed, skipping", zap.Error(err))
		return "", false, nil
	}
	if reply == "" {
		e.logger().Warn("empty reply, skipping")
		return "", false, nil
	}
	return reply, true, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Result is what a generator produced.
type Result struct {
	Items    []record.Annotated
	Output   string
	Extra    []string
	Attempts int
	Skipped  int
}

func (r *Result) Count() int { return len(r.Items) }

func (r *Result) add(item record.Annotated) {
	r.Items = append(r.Items, item)
}

func pick[T any](r *rand.Rand, xs []T) T {
	return xs[r.IntN(len(xs))]
}

func chat(system, user string) []record.Message {
	return []record.Message{
		{Role: record.RoleSystem, Content: system},
		{Role: record.RoleUser, Content: user},
	}
}
