package testutil

import (
	"bytes"
	"encoding/json"
)

// PageBuilder assembles search response bodies shaped like the upstream
// adaptive search payload.
type PageBuilder struct {
	tweets map[string]map[string]any
	users  map[string]map[string]any
	cursor string
}

// NewPage starts a page whose timeline carries cursor. An empty cursor
// produces a timeline without any scroll cursor.
func NewPage(cursor string) *PageBuilder {
	return &PageBuilder{
		tweets: make(map[string]map[string]any),
		users:  make(map[string]map[string]any),
		cursor: cursor,
	}
}

// WithTweet adds an item keyed and identified by id, authored by userID.
func (b *PageBuilder) WithTweet(id, userID, text string) *PageBuilder {
	b.tweets[id] = map[string]any{
		"id_str":      id,
		"user_id_str": userID,
		"full_text":   text,
	}
	return b
}

// WithRawTweet adds an item with arbitrary fields under key.
func (b *PageBuilder) WithRawTweet(key string, fields map[string]any) *PageBuilder {
	b.tweets[key] = fields
	return b
}

// WithUser adds an actor.
func (b *PageBuilder) WithUser(id, screenName string) *PageBuilder {
	b.users[id] = map[string]any{
		"id_str":      id,
		"screen_name": screenName,
	}
	return b
}

// Timeline returns the timeline substructure as it appears in the body.
func (b *PageBuilder) Timeline() map[string]any {
	entries := []any{
		map[string]any{
			"entryId":   "sq-I-t-1",
			"sortIndex": "999999",
			"content":   map[string]any{"item": map[string]any{}},
		},
	}
	if b.cursor != "" {
		entries = append(entries,
			map[string]any{
				"entryId":   "sq-cursor-top",
				"sortIndex": "999999999",
				"content": map[string]any{
					"operation": map[string]any{
						"cursor": map[string]any{"value": "refresh:" + b.cursor, "cursorType": "Top"},
					},
				},
			},
			map[string]any{
				"entryId":   "sq-cursor-bottom",
				"sortIndex": "0",
				"content": map[string]any{
					"operation": map[string]any{
						"cursor": map[string]any{"value": b.cursor, "cursorType": "Bottom"},
					},
				},
			},
		)
	}

	return map[string]any{
		"id": "search-6882745183850491905",
		"instructions": []any{
			map[string]any{"addEntries": map[string]any{"entries": entries}},
		},
	}
}

// JSON renders the page body.
func (b *PageBuilder) JSON() string {
	body := map[string]any{
		"globalObjects": map[string]any{
			"tweets":     b.tweets,
			"users":      b.users,
			"moments":    map[string]any{},
			"cards":      map[string]any{},
			"places":     map[string]any{},
			"media":      map[string]any{},
			"broadcasts": map[string]any{},
			"topics":     map[string]any{},
			"lists":      map[string]any{},
		},
		"timeline": b.Timeline(),
	}

	// The upstream API sends text such as "&amp;" unescaped.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		panic(err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
