package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// AutomationStep is one row of the record store's Automations table (spec
// §4.9): the orchestrator consults Enabled before running a step and
// writes the rest back as that step's last-run outcome.
type AutomationStep struct {
	RecordID        string
	Name            string
	Enabled         bool
	LastRunSuccess  bool
	LastRunDuration float64
	LastRunMessage  string
	LastRunStats    map[string]interface{}
}

func encodeAutomationStep(a AutomationStep) map[string]interface{} {
	statsJSON := "{}"
	if a.LastRunStats != nil {
		if raw, err := json.Marshal(a.LastRunStats); err == nil {
			statsJSON = string(raw)
		}
	}
	return map[string]interface{}{
		"Name":                      a.Name,
		"Enabled":                   a.Enabled,
		"Last Run Success":          a.LastRunSuccess,
		"Last Run Duration Seconds": a.LastRunDuration,
		"Last Run Message":          a.LastRunMessage,
		"Last Run Statistics":       statsJSON,
	}
}

func decodeAutomationStep(rec recordEnvelope) AutomationStep {
	a := AutomationStep{RecordID: rec.ID}
	a.Name, _ = rec.Fields["Name"].(string)
	a.Enabled, _ = rec.Fields["Enabled"].(bool)
	a.LastRunSuccess, _ = rec.Fields["Last Run Success"].(bool)
	if d, ok := rec.Fields["Last Run Duration Seconds"].(float64); ok {
		a.LastRunDuration = d
	}
	a.LastRunMessage, _ = rec.Fields["Last Run Message"].(string)
	if raw, ok := rec.Fields["Last Run Statistics"].(string); ok && raw != "" {
		var stats map[string]interface{}
		if json.Unmarshal([]byte(raw), &stats) == nil {
			a.LastRunStats = stats
		}
	}
	return a
}

// AutomationByName fetches the Automations row named name, or nil if no
// such row exists (spec §4.9 "skips steps disabled there" implies an
// absent row does not disable a step; callers default missing rows to
// enabled).
func (c *Client) AutomationByName(ctx context.Context, name string) (*AutomationStep, error) {
	formula := fmt.Sprintf("{Name} = %s", quoteFormula(name))

	raw, err := c.do(ctx, "GET", "/Automations", url.Values{"filterByFormula": {formula}}, nil)
	if err != nil {
		return nil, fmt.Errorf("automation by name %s: %w", name, err)
	}

	var page listEnvelope
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("recordstore: decode automations page: %w", err)
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	a := decodeAutomationStep(page.Records[0])
	return &a, nil
}

// RecordAutomationResult upserts step's outcome into the Automations
// table: updates the existing row by name if one exists, otherwise
// creates it enabled by default (spec §4.9 "written back to that table").
func (c *Client) RecordAutomationResult(ctx context.Context, step AutomationStep) error {
	existing, err := c.AutomationByName(ctx, step.Name)
	if err != nil {
		return err
	}

	if existing == nil {
		step.Enabled = true
		fields := encodeAutomationStep(step)
		_, err := c.do(ctx, "POST", "/Automations", nil, recordEnvelope{Fields: fields})
		if err != nil {
			return fmt.Errorf("create automation row %s: %w", step.Name, err)
		}
		return nil
	}

	step.RecordID = existing.RecordID
	step.Enabled = existing.Enabled
	fields := encodeAutomationStep(step)
	_, err = c.do(ctx, "PATCH", "/Automations/"+existing.RecordID, nil, recordEnvelope{Fields: fields})
	if err != nil {
		return fmt.Errorf("update automation row %s: %w", step.Name, err)
	}
	return nil
}
