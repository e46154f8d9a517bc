// Package pipeline runs several generation tasks back to back.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strrl/sft-forge/internal/generate"
)

// Task is one step of a pipeline. Run returns the number of records it
// produced.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

type Config struct {
	// Rest is the pause between consecutive tasks.
	Rest time.Duration
	// Sleep waits out Rest. Nil uses generate.Sleep.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

type Pipeline struct {
	tasks []Task
	cfg   Config
}

func New(cfg Config, tasks ...Task) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = generate.Sleep
	}
	return &Pipeline{tasks: tasks, cfg: cfg}
}

type TaskResult struct {
	Name     string
	Records  int
	Duration time.Duration
	Err      error
}

type Stats struct {
	Tasks     []TaskResult
	Succeeded int
	Failed    int
	Records   int
}

// Process runs every task in order. A failing task is recorded and the next
// one still runs; only cancellation stops the pipeline early.
func (p *Pipeline) Process(ctx context.Context) (Stats, error) {
	var stats Stats
	log := p.cfg.Logger

	for i, task := range p.tasks {
		if i > 0 && p.cfg.Rest > 0 {
			log.Info("resting between tasks", zap.Duration("rest", p.cfg.Rest))
			if err := p.cfg.Sleep(ctx, p.cfg.Rest); err != nil {
				return stats, err
			}
		}

		log.Info("task started", zap.String("task", task.Name))
		start := time.Now()
		n, err := task.Run(ctx)
		result := TaskResult{Name: task.Name, Records: n, Duration: time.Since(start), Err: err}
		stats.Tasks = append(stats.Tasks, result)

		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			log.Error("task failed", zap.String("task", task.Name), zap.Error(err))
			continue
		}

		stats.Succeeded++
		stats.Records += n
		log.Info("task finished", zap.String("task", task.Name), zap.Int("records", n), zap.Duration("took", result.Duration))
	}

	return stats, nil
}
