package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaViolation is returned when an inbound event payload does not
// match the task event schema. Schema violations are permanent: the payload
// will never become valid on retry, so consumers dead-letter immediately.
var ErrSchemaViolation = errors.New("event schema violation")

// taskEventSchema pins down the inbound task event shape. Unknown extra
// fields are allowed so producers can evolve additively; missing or
// mistyped required fields are not.
const taskEventSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["event_id", "schema_version", "event_type", "timestamp", "task_id", "user_id", "task_data"],
	"properties": {
		"event_id": {"type": "string", "minLength": 36, "maxLength": 36},
		"schema_version": {"type": "string"},
		"event_type": {
			"type": "string",
			"enum": ["task.created", "task.updated", "task.deleted", "task.completed"]
		},
		"timestamp": {"type": "string"},
		"task_id": {"type": "integer", "minimum": 1},
		"user_id": {"type": "integer", "minimum": 1},
		"task_data": {
			"type": "object",
			"required": ["title", "status"],
			"properties": {
				"title": {"type": "string"},
				"status": {"type": "string", "enum": ["pending", "in_progress", "completed"]},
				"due_date": {"type": ["string", "null"]},
				"reminder_offset": {"type": ["string", "null"]},
				"parent_task_id": {"type": ["integer", "null"]},
				"recurrence_rule": {
					"type": ["object", "null"],
					"required": ["frequency", "interval"],
					"properties": {
						"frequency": {"type": "string", "enum": ["daily", "weekly", "monthly"]},
						"interval": {"type": "integer", "minimum": 1},
						"days_of_week": {
							"type": "array",
							"items": {"type": "integer", "minimum": 0, "maximum": 6}
						},
						"day_of_month": {"type": "integer", "minimum": 1, "maximum": 31}
					}
				}
			}
		}
	}
}`

var compiledTaskEventSchema = jsonschema.MustCompileString("task_event.json", taskEventSchema)

// ValidateTaskEventPayload checks a raw inbound payload against the task
// event schema before any decoding into domain types.
func ValidateTaskEventPayload(payload json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("%w: not valid JSON: %v", ErrSchemaViolation, err)
	}

	if err := compiledTaskEventSchema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", ErrSchemaViolation, flattenSchemaError(ve))
		}
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// flattenSchemaError renders the leaf causes of a validation error on one
// line for logging and dead-letter context.
func flattenSchemaError(ve *jsonschema.ValidationError) string {
	leaves := ve.Causes
	if len(leaves) == 0 {
		return ve.Error()
	}
	msgs := make([]string, 0, len(leaves))
	for _, c := range leaves {
		msgs = append(msgs, fmt.Sprintf("%s: %s", c.InstanceLocation, c.Message))
	}
	return strings.Join(msgs, "; ")
}
