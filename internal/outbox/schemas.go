package outbox

import platformevents "github.com/xmasacrex/club-rpg/internal/platform/events"

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	platformevents.TypeActivityStarted:   {Schema: activityStartedSchema},
	platformevents.TypeActivityCompleted: {Schema: activityCompletedSchema},
	platformevents.TypeActivityCancelled: {Schema: activityCancelledSchema},
}

const activityStartedSchema = `{
  "type": "object",
  "title": "ActivityStarted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "participants": {"type": "array", "items": {"type": "string"}},
    "activity_type": {"type": "string"},
    "channel_id": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "finish_at": {"type": "string", "format": "date-time"},
    "duration_sec": {"type": "integer"}
  },
  "required": ["activity_id", "user_id", "participants", "activity_type", "started_at", "finish_at", "duration_sec"],
  "additionalProperties": false
}`

const activityCompletedSchema = `{
  "type": "object",
  "title": "ActivityCompleted",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "participants": {"type": "array", "items": {"type": "string"}},
    "activity_type": {"type": "string"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "participants", "activity_type", "completed_at"],
  "additionalProperties": false
}`

const activityCancelledSchema = `{
  "type": "object",
  "title": "ActivityCancelled",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "participants": {"type": "array", "items": {"type": "string"}},
    "activity_type": {"type": "string"},
    "cancelled_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "participants", "activity_type", "cancelled_at"],
  "additionalProperties": false
}`
