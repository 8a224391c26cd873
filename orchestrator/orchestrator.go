// Package orchestrator implements C9: it runs the fixed component
// sequence spec §4.9 names (CSV ingest, calendar ingest, reconciler
// flush, job projection, sync verification, job reconciliation) on a
// schedule, consulting the record store's Automations table before each
// step and writing each step's outcome back to it. Grounded on the
// teacher's worker.Pool/Config "named queue with per-queue worker count"
// shape in spirit — a named, independently toggleable unit of work — but
// adapted to a single-pass ordered run rather than a persistent pool,
// since C9's steps are a fixed sequence executed once per schedule tick,
// not an open job stream.
package orchestrator

import (
	"context"
	"time"

	"strreconcile.dev/core/logging"
)

// StepResult is what spec §4.9/§7 call a step's outcome: "counts,
// duration, message" plus the success flag the Automations table stores
// (spec §7 "{success, duration_seconds, message, statistics}").
type StepResult struct {
	Success  bool
	Duration time.Duration
	Message  string
	Stats    map[string]interface{}
}

// Step is one named unit of the fixed sequence. Run receives a context
// carrying the run's wall-clock cap (spec §5 "a top-level run has a
// wall-clock cap (10 min)").
type Step struct {
	Name string
	Run  func(ctx context.Context) StepResult
}

// Automations is the narrow slice of the record-store gateway the
// orchestrator depends on: whether a named step is enabled, and where to
// write its last-run outcome.
type Automations interface {
	IsEnabled(ctx context.Context, name string) (bool, error)
	RecordResult(ctx context.Context, name string, result StepResult) error
}

// Orchestrator runs Steps in the fixed order they were given, skipping
// any the Automations table disables, and never lets one step's failure
// stop the rest (spec §4.9 "a step failure does not abort the suite").
type Orchestrator struct {
	steps       []Step
	automations Automations
	logger      *logging.ContextLogger
}

// New builds an Orchestrator over steps, run in the given order.
func New(automations Automations, steps []Step) *Orchestrator {
	return &Orchestrator{steps: steps, automations: automations, logger: logging.New("orchestrator")}
}

// RunOutcome pairs a step's name with its result, in run order.
type RunOutcome struct {
	Step   string
	Result StepResult
}

// RunAll executes every step in sequence, skipping disabled ones,
// recording each outcome to the Automations table, and returning every
// outcome (skipped steps included, marked with IconWarning) for a
// caller's own reporting.
func (o *Orchestrator) RunAll(ctx context.Context) []RunOutcome {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	outcomes := make([]RunOutcome, 0, len(o.steps))

	for _, step := range o.steps {
		logger := o.logger.WithField("step", step.Name)

		enabled, err := o.automations.IsEnabled(ctx, step.Name)
		if err != nil {
			logger.WithError(err).Warn("failed to check automation enabled state, running step anyway")
			enabled = true
		}
		if !enabled {
			result := StepResult{Success: true, Message: normalizeIcon(IconWarning, "step disabled")}
			outcomes = append(outcomes, RunOutcome{Step: step.Name, Result: result})
			o.record(ctx, step.Name, result)
			continue
		}

		start := time.Now()
		result := o.runOne(ctx, step)
		result.Duration = time.Since(start)

		icon := IconSuccess
		if !result.Success {
			icon = IconFailure
		}
		result.Message = normalizeIcon(icon, result.Message)

		outcomes = append(outcomes, RunOutcome{Step: step.Name, Result: result})
		o.record(ctx, step.Name, result)

		logger.WithFields(map[string]interface{}{
			"success":     result.Success,
			"duration_ms": result.Duration.Milliseconds(),
		}).Info(result.Message)
	}

	return outcomes
}

// runOne guards a single step's Run against a panic, converting it into a
// failed StepResult so one broken step can never take the whole run down
// (spec §4.9's failure-isolation rule extends to programmer error, not
// just returned errors).
func (o *Orchestrator) runOne(ctx context.Context, step Step) (result StepResult) {
	defer func() {
		if r := recover(); r != nil {
			result = StepResult{Success: false, Message: "step panicked"}
			o.logger.WithField("step", step.Name).WithField("panic", r).Error("step panicked")
		}
	}()
	return step.Run(ctx)
}

func (o *Orchestrator) record(ctx context.Context, name string, result StepResult) {
	if err := o.automations.RecordResult(ctx, name, result); err != nil {
		o.logger.WithField("step", name).WithError(err).Error("failed to record automation result")
	}
}
