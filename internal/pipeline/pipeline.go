// Package pipeline runs the four-stage questionnaire pipeline: determine job
// roles, retrieve NOC codes, compute the CRS score and generate a roadmap.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/metrics"
)

var (
	ErrEmptyQuestionnaire = errors.New("questionnaire must not be empty")
	// ErrMissingInput means a stage ran before the fields it reads were written.
	ErrMissingInput = errors.New("stage input has not been written")
	// ErrFieldWritten means a stage would overwrite a field written earlier.
	ErrFieldWritten = errors.New("stage output has already been written")
	// ErrFieldNotWritten means a stage returned without writing its field.
	ErrFieldNotWritten = errors.New("stage did not write its output")
	// ErrUnexpectedWrite means a stage modified a field it does not own.
	ErrUnexpectedWrite = errors.New("stage modified a field it does not own")
)

// StageError reports the stage at which a run stopped.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline executes its stages strictly in order over one record per run.
// It keeps no per-run state, so a single Pipeline serves concurrent runs.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
	newID  func() string
}

func New(stages []Stage, log *zap.Logger) *Pipeline {
	return &Pipeline{
		stages: stages,
		logger: logger.WithFields(log),
		newID:  uuid.NewString,
	}
}

// StageNames lists the stages in execution order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Run executes every stage on a fresh record. On failure no record is
// returned and the error is a *StageError naming the failed stage; stages
// after it are never invoked.
func (p *Pipeline) Run(ctx context.Context, questionnaire string) (*Record, error) {
	if strings.TrimSpace(questionnaire) == "" {
		return nil, ErrEmptyQuestionnaire
	}

	rec := Record{ID: p.newID(), Questionnaire: questionnaire}
	runLogger := p.logger.With(logger.RunFields(rec.ID, "")...)
	runLogger.Info("starting pipeline run", zap.Strings("stages", p.StageNames()))

	started := time.Now()
	for _, stage := range p.stages {
		next, err := p.step(ctx, stage, rec)
		if err != nil {
			metrics.ObserveRun(err)
			runLogger.Error("pipeline run failed",
				zap.String(logger.FieldStage, stage.Name()),
				zap.Duration("elapsed", time.Since(started)),
				zap.Error(err),
			)
			return nil, &StageError{Stage: stage.Name(), Err: err}
		}
		rec = next
	}

	metrics.ObserveRun(nil)
	runLogger.Info("pipeline run completed", zap.Duration("elapsed", time.Since(started)))

	return &rec, nil
}

func (p *Pipeline) step(ctx context.Context, stage Stage, rec Record) (Record, error) {
	for _, f := range stage.Reads() {
		if !rec.Has(f) {
			return rec, fmt.Errorf("%s: %w", f, ErrMissingInput)
		}
	}

	out := stage.Writes()
	if rec.Has(out) {
		return rec, fmt.Errorf("%s: %w", out, ErrFieldWritten)
	}

	stageLogger := p.logger.With(logger.RunFields(rec.ID, stage.Name())...)
	stageLogger.Debug("stage started")

	started := time.Now()
	next, err := stage.Apply(ctx, rec)
	metrics.ObserveStage(stage.Name(), started, err)
	if err != nil {
		return rec, err
	}

	if !next.Has(out) {
		return rec, fmt.Errorf("%s: %w", out, ErrFieldNotWritten)
	}
	if changed := next.changedExcept(rec, out); changed != "" {
		return rec, fmt.Errorf("%s: %w", changed, ErrUnexpectedWrite)
	}

	stageLogger.Info("stage completed", zap.Duration("elapsed", time.Since(started)))
	return next, nil
}
