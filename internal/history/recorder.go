package history

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/drivepulse/drivepulse/internal/resilience"
	"github.com/drivepulse/drivepulse/internal/station"
)

// Recorder writes simulator changes to a Repository.
type Recorder struct {
	repo     Repository
	executor *resilience.Executor
	logger   zerolog.Logger
}

// NewRecorder creates a Recorder. A nil executor gets the defaults.
func NewRecorder(repo Repository, exec *resilience.Executor, logger zerolog.Logger) *Recorder {
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultExecutorConfig("history"))
	}
	return &Recorder{repo: repo, executor: exec, logger: logger}
}

// Name implements simulator.Sink.
func (r *Recorder) Name() string {
	return "history"
}

// Publish appends the batch to the repository.
func (r *Recorder) Publish(ctx context.Context, changes []station.AvailabilityChange) error {
	err := r.executor.Do(ctx, func(ctx context.Context) error {
		return r.repo.Append(ctx, changes)
	})
	if err != nil {
		return err
	}

	r.logger.Debug().Int("changes", len(changes)).Msg("recorded availability history")
	return nil
}
