// internal/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"pcots-notifications/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// SweepDefinition is one entry of the sweep registry: trigger cadence,
// lookahead window and the notification template identity for a job.
type SweepDefinition struct {
	Name          string `json:"name"`
	TemplateKey   string `json:"template_key"`
	Title         string `json:"title"`
	IntervalHours int    `json:"interval_hours"`
	WindowDays    int    `json:"window_days"`
	Enabled       bool   `json:"enabled"`
}

const schemaJSON = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name", "template_key", "title", "interval_hours", "window_days"],
		"additionalProperties": false,
		"properties": {
			"name":           {"type": "string", "minLength": 1},
			"template_key":   {"type": "string", "minLength": 1},
			"title":          {"type": "string", "minLength": 1},
			"interval_hours": {"type": "integer", "minimum": 1},
			"window_days":    {"type": "integer", "minimum": 1},
			"enabled":        {"type": "boolean"}
		}
	}
}`

// Defaults returns the compiled-in registry used when no file is configured.
func Defaults() []SweepDefinition {
	return []SweepDefinition{
		{Name: "permit-expiry", TemplateKey: "permit-expiry-warning", Title: "Permit Expiration Warning", IntervalHours: 24, WindowDays: 30, Enabled: true},
		{Name: "alert-escalation", TemplateKey: "alert-escalation", Title: "Action Required: Unacknowledged Alerts", IntervalHours: 4, WindowDays: 1, Enabled: true},
		{Name: "lc-report-due", TemplateKey: "lc-report-due", Title: "Local Content Report Due Soon", IntervalHours: 168, WindowDays: 30, Enabled: true},
		{Name: "inspection-reminder", TemplateKey: "inspection-reminder", Title: "Inspection Reminder", IntervalHours: 24, WindowDays: 3, Enabled: true},
	}
}

// Load reads and validates the registry file. An empty path or a missing
// file falls back to Defaults; a file that fails schema validation is an
// error, not a fallback.
func Load(path string) ([]SweepDefinition, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("read sweep registry %s: %w", path, err)
	}

	if err := Validate(data); err != nil {
		return nil, err
	}

	var defs []SweepDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse sweep registry %s: %w", path, err)
	}

	return defs, nil
}

// Validate checks raw registry JSON against the embedded schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.NewRegistryInvalidError(err.Error())
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return errors.NewRegistryInvalidError(strings.Join(details, "; "))
	}

	return nil
}

// ByName indexes definitions for lookup during wiring.
func ByName(defs []SweepDefinition) map[string]SweepDefinition {
	out := make(map[string]SweepDefinition, len(defs))
	for _, d := range defs {
		out[d.Name] = d
	}
	return out
}
