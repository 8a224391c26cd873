package orchestrator

import (
	"context"

	"strreconcile.dev/core/recordstore"
)

// automationsStore is the narrow slice of recordstore.Client the
// RecordStoreAutomations adapter depends on.
type automationsStore interface {
	AutomationByName(ctx context.Context, name string) (*recordstore.AutomationStep, error)
	RecordAutomationResult(ctx context.Context, step recordstore.AutomationStep) error
}

// RecordStoreAutomations adapts recordstore.Client's Automations-table
// methods to the Automations interface Orchestrator depends on. A row
// absent from the table defaults to enabled (spec §4.9 only specifies
// skipping steps the table *disables*; an unconfigured step has nothing
// disabling it).
type RecordStoreAutomations struct {
	Store automationsStore
}

func (a RecordStoreAutomations) IsEnabled(ctx context.Context, name string) (bool, error) {
	step, err := a.Store.AutomationByName(ctx, name)
	if err != nil {
		return false, err
	}
	if step == nil {
		return true, nil
	}
	return step.Enabled, nil
}

func (a RecordStoreAutomations) RecordResult(ctx context.Context, name string, result StepResult) error {
	return a.Store.RecordAutomationResult(ctx, recordstore.AutomationStep{
		Name:            name,
		LastRunSuccess:  result.Success,
		LastRunDuration: result.Duration.Seconds(),
		LastRunMessage:  result.Message,
		LastRunStats:    result.Stats,
	})
}
