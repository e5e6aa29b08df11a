package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Step is one stage of a pipeline. Steps run in sequence, each receiving the
// state accumulated by the steps before it.
type Step[S any] interface {
	// Do executes the step. A returned error aborts the pipeline.
	Do(ctx context.Context, state *S) error

	// Name returns the step's name for logging.
	Name() string
}

// StepFunc adapts a named function to the Step interface.
type StepFunc[S any] struct {
	name string
	fn   func(ctx context.Context, state *S) error
}

// NewStepFunc creates a step from a function.
func NewStepFunc[S any](name string, fn func(ctx context.Context, state *S) error) StepFunc[S] {
	return StepFunc[S]{name: name, fn: fn}
}

// Do implements Step.
func (s StepFunc[S]) Do(ctx context.Context, state *S) error {
	return s.fn(ctx, state)
}

// Name implements Step.
func (s StepFunc[S]) Name() string {
	return s.name
}

// Recorder is implemented by states that track which steps completed.
type Recorder interface {
	RecordStep(name string)
}

// Pipeline runs an ordered list of steps over a state of type S.
type Pipeline[S any] struct {
	steps  []Step[S]
	logger *slog.Logger
}

// Option configures a Pipeline.
type Option func(*config)

type config struct {
	logger *slog.Logger
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New creates a pipeline with the given steps.
func New[S any](steps []Step[S], opts ...Option) *Pipeline[S] {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return &Pipeline[S]{
		steps:  append([]Step[S](nil), steps...),
		logger: c.logger,
	}
}

// Execute runs every step in order and stops at the first failure.
//
// Cancellation is checked before each step; steps are responsible for
// honoring ctx while they run. The returned error names the failing step.
func (p *Pipeline[S]) Execute(ctx context.Context, state *S) error {
	recorder, _ := any(state).(Recorder)

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", err,
			)
			return err
		}

		p.logger.Debug("executing step", "step", step.Name())

		if err := step.Do(ctx, state); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"error", err,
			)
			return fmt.Errorf("%s: %w", step.Name(), err)
		}

		if recorder != nil {
			recorder.RecordStep(step.Name())
		}
	}
	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline[S]) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
