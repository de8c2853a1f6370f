package coordinator

import (
	"context"
	"log/slog"

	"github.com/jcmexdev/ecommerce-orchestrator/internal/coordinator/sagalog"
)

// Step represents a single unit of work in the Saga.
// Each step must have a compensating action to undo its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Saga runs one attempt's steps in order and undoes the completed ones,
// newest first, when a later step fails. Every transition is appended to the
// saga log when one is configured.
type Saga struct {
	id     string
	steps  []Step
	log    sagalog.Repository
	logger *slog.Logger
}

// New builds a saga. log may be nil, in which case transitions are only
// written to logger.
func New(id string, steps []Step, log sagalog.Repository, logger *slog.Logger) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{id: id, steps: steps, log: log, logger: logger}
}

// Run executes the steps. On failure it compensates and returns the failing
// step's error unchanged so callers can match on it.
func (s *Saga) Run(ctx context.Context, payload string) error {
	s.record(ctx, sagalog.StatusStarted, "", payload, nil)

	completed := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		s.logger.DebugContext(ctx, "executing saga step", "saga_id", s.id, "step", step.Name())
		if err := step.Execute(ctx); err != nil {
			s.logger.WarnContext(ctx, "saga step failed, compensating",
				"saga_id", s.id, "step", step.Name(), "completed", len(completed), "error", err)
			s.record(ctx, sagalog.StatusCompensating, step.Name(), "", []string{err.Error()})

			errs := append([]string{step.Name() + ": " + err.Error()}, s.rollback(ctx, completed)...)
			s.record(ctx, sagalog.StatusFailed, step.Name(), "", errs)
			return err
		}
		completed = append(completed, step)
		s.record(ctx, sagalog.StatusStepDone, step.Name(), "", nil)
	}

	s.record(ctx, sagalog.StatusCompleted, "", "", nil)
	return nil
}

// rollback compensates in reverse and returns the compensation failures.
func (s *Saga) rollback(ctx context.Context, completed []Step) []string {
	var failures []string
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if err := step.Compensate(ctx); err != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: failed to compensate saga step",
				"saga_id", s.id, "step", step.Name(), "error", err)
			failures = append(failures, "compensate "+step.Name()+": "+err.Error())
		}
	}
	return failures
}

func (s *Saga) record(ctx context.Context, status sagalog.Status, step, payload string, errs []string) {
	if s.log == nil {
		return
	}
	if err := s.log.Save(ctx, sagalog.NewEntry(ctx, s.id, status, step, payload, errs)); err != nil {
		s.logger.WarnContext(ctx, "saga log write failed", "saga_id", s.id, "status", status, "error", err)
	}
}
