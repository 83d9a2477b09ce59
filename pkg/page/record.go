// Package page decodes raw search result pages into self-contained records
// and the continuation cursor for the next page.
package page

import (
	"encoding/json"
)

// Field names of the upstream payload.
const (
	// FieldID holds the record identifier as a decimal string.
	FieldID = "id_str"

	// FieldActorID is the foreign key pointing into the actors mapping.
	FieldActorID = "user_id_str"

	// FieldActor is the reserved field the actor is embedded under.
	FieldActor = "user"
)

// Record is one merged result: every item field plus the embedded actor.
// Field values are kept as raw JSON so unknown fields survive untouched.
type Record map[string]json.RawMessage

// ID returns the record identifier, or "" when the field is missing or not a
// JSON string.
func (r Record) ID() string {
	return r.stringField(FieldID)
}

// ActorID returns the foreign key of the record's actor.
func (r Record) ActorID() string {
	return r.stringField(FieldActorID)
}

// Actor returns the embedded actor, or nil when none was merged in.
func (r Record) Actor() json.RawMessage {
	return r[FieldActor]
}

func (r Record) stringField(name string) string {
	raw, ok := r[name]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Page is the decoded form of one response body.
type Page struct {
	// Records in page order (see Decode for the ordering policy).
	Records []Record

	// Cursor continues the search on the next request.
	Cursor string
}
