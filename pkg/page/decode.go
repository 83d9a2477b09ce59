package page

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
)

// cursorPattern matches the first scroll continuation token in a serialized
// timeline.
var cursorPattern = regexp.MustCompile(`"scroll:(?:[^"\\]|\\.)+"`)

type payload struct {
	GlobalObjects *globalObjects  `json:"globalObjects"`
	Timeline      json.RawMessage `json:"timeline"`
}

type globalObjects struct {
	Tweets map[string]json.RawMessage `json:"tweets"`
	Users  map[string]json.RawMessage `json:"users"`
}

// Decode parses one response body into merged records and the next cursor.
//
// Items are merged with their actor (looked up through FieldActorID) and
// ordered by descending string order of their id keys. String order only
// matches numeric order for identifiers of equal width.
func Decode(body []byte) (*Page, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		PagesDecoded.WithLabelValues("malformed").Inc()
		return nil, &ParseError{Reason: "malformed body", Err: err}
	}

	if p.GlobalObjects == nil {
		PagesDecoded.WithLabelValues("malformed").Inc()
		return nil, &ParseError{Reason: "missing globalObjects"}
	}
	if p.GlobalObjects.Tweets == nil {
		PagesDecoded.WithLabelValues("malformed").Inc()
		return nil, &ParseError{Reason: "missing globalObjects.tweets"}
	}
	if p.GlobalObjects.Users == nil {
		PagesDecoded.WithLabelValues("malformed").Inc()
		return nil, &ParseError{Reason: "missing globalObjects.users"}
	}
	if len(p.Timeline) == 0 || bytes.Equal(p.Timeline, []byte("null")) {
		PagesDecoded.WithLabelValues("malformed").Inc()
		return nil, &ParseError{Reason: "missing timeline"}
	}

	records, err := merge(p.GlobalObjects.Tweets, p.GlobalObjects.Users)
	if err != nil {
		PagesDecoded.WithLabelValues("malformed").Inc()
		return nil, err
	}

	cursor, err := ExtractCursor(p.Timeline)
	if err != nil {
		PagesDecoded.WithLabelValues("no_cursor").Inc()
		return nil, err
	}

	PagesDecoded.WithLabelValues("ok").Inc()
	RecordsDecoded.Add(float64(len(records)))

	return &Page{
		Records: records,
		Cursor:  cursor,
	}, nil
}

func merge(items, actors map[string]json.RawMessage) ([]Record, error) {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]

		var rec Record
		if err := json.Unmarshal(items[key], &rec); err != nil || rec == nil {
			return nil, &ParseError{Reason: "item " + key + " is not an object", Err: err}
		}

		if actor, ok := actors[rec.ActorID()]; ok {
			rec[FieldActor] = actor
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExtractCursor scans the serialized timeline for the first scroll cursor.
// The scan runs on the compacted form, so equivalent timelines yield the same
// cursor regardless of formatting.
func ExtractCursor(timeline []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, timeline); err != nil {
		return "", &ParseError{Reason: "malformed timeline", Err: err}
	}

	m := cursorPattern.Find(buf.Bytes())
	if m == nil {
		return "", &ParseError{Reason: "timeline", Err: ErrCursorNotFound}
	}

	// The match is a JSON string literal; unquote escapes such as \/.
	var cursor string
	if err := json.Unmarshal(m, &cursor); err != nil {
		return "", &ParseError{Reason: "malformed cursor", Err: err}
	}
	return cursor, nil
}
