package vision

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseModelJSON decodes a JSON reply from a text model. Models asked for
// "JSON only" still tend to wrap the payload in markdown code fences, so
// any ```json / ``` markers are stripped before decoding. This is the only
// place that quirk is handled.
func ParseModelJSON(text string, v any) error {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return fmt.Errorf("empty model response")
	}

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("parse model JSON: %w", err)
	}
	return nil
}
