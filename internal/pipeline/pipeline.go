// Package pipeline wires the canonical export stages into one batch run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/basket-export/internal/export"
	"github.com/dvloznov/basket-export/internal/logger"
)

// ErrNoTimestampSource is returned at startup when the authoritative
// interaction log does not exist at all.
var ErrNoTimestampSource = errors.New("authoritative timestamp source missing")

// ErrFilteredDelta is returned when a delta run is given a non-empty filter.
var ErrFilteredDelta = export.ErrScopedDelta

// PipelineStep represents a single stage of a run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) not started: %w", i+1, step.Name(), err)
		}

		start := time.Now()
		if err := step.Execute(ctx, state); err != nil {
			log.Error().Err(err).Str("stage", step.Name()).Msg("Stage failed")
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().
			Str("stage", step.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("Stage finished")
	}
	return nil
}
