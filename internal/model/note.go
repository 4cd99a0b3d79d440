package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const noteTimeLayout = "2006-01-02 15:04"

// Note is one attributed entry in a complaint's public or internal trail.
type Note struct {
	At     time.Time `json:"timestamp"`
	Author string    `json:"author"`
	Text   string    `json:"text"`
}

func (n Note) String() string {
	return fmt.Sprintf("[%s] %s: %s", n.At.Format(noteTimeLayout), n.Author, n.Text)
}

// NoteLog is an append-only, oldest-first list of notes. It is stored as a
// JSONB array.
type NoteLog []Note

// Append returns the log with a new note at the end.
func (l NoteLog) Append(at time.Time, author, text string) NoteLog {
	return append(l, Note{At: at, Author: author, Text: text})
}

// String renders the log as blank-line separated entries.
func (l NoteLog) String() string {
	parts := make([]string, len(l))
	for i, n := range l {
		parts[i] = n.String()
	}
	return strings.Join(parts, "\n\n")
}

// Value encodes the log as a JSON string; lib/pq would send a []byte as
// bytea.
func (l NoteLog) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *NoteLog) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("note log: unsupported type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}
