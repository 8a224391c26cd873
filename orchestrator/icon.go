package orchestrator

import "strings"

// Icon is one of the three status markers spec §4.9/§7 require every
// step message to carry, exactly once, regardless of which step produced
// it.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconFailure Icon = "✗"
	IconWarning Icon = "⚠"
)

var knownIcons = []string{string(IconSuccess), string(IconFailure), string(IconWarning)}

// normalizeIcon strips any leading icon markers a step's message may
// already carry (a step that composed its own prefix, or one relayed
// from an inner call) and prepends icon exactly once. This is the single
// choke point spec §4.9 calls for: "status icons are normalized to
// exactly one leading marker per message."
func normalizeIcon(icon Icon, message string) string {
	trimmed := strings.TrimSpace(message)
	for {
		stripped := false
		for _, known := range knownIcons {
			if strings.HasPrefix(trimmed, known) {
				trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, known))
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}
	if trimmed == "" {
		return string(icon)
	}
	return string(icon) + " " + trimmed
}
