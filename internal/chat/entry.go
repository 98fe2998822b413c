// Package chat holds the in-memory state of the chat room: the ordered
// message log and the presence registry of identified connections.
package chat

import (
	"encoding/json"
	"maps"
	"time"
)

// Reserved keys of the entry wire format. Extra fields never override them.
const (
	keyUsername  = "username"
	keyMessage   = "message"
	keyCreatedAt = "createdAt"
)

// Entry is one line of the message log, either authored by a user or
// synthesized by the server (a disconnection notice, for instance).
// Entries are immutable once appended.
type Entry struct {
	Username  string
	Message   string
	CreatedAt time.Time
	// Extra carries any additional payload fields sent by the client.
	Extra map[string]json.RawMessage
}

func (e Entry) clone() Entry {
	if e.Extra != nil {
		e.Extra = maps.Clone(e.Extra)
	}
	return e
}

// MarshalJSON inlines Extra next to the reserved fields and omits an
// absent username.
func (e Entry) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(e.Extra)+3)
	for k, v := range e.Extra {
		fields[k] = v
	}
	if e.Username != "" {
		fields[keyUsername] = e.Username
	} else {
		delete(fields, keyUsername)
	}
	fields[keyMessage] = e.Message
	fields[keyCreatedAt] = e.CreatedAt.Format(time.RFC3339Nano)
	return json.Marshal(fields)
}

// UnmarshalJSON is the inverse of MarshalJSON. Unknown keys end up in Extra.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var out Entry
	if raw, ok := fields[keyUsername]; ok {
		if err := json.Unmarshal(raw, &out.Username); err != nil {
			return err
		}
		delete(fields, keyUsername)
	}
	if raw, ok := fields[keyMessage]; ok {
		if err := json.Unmarshal(raw, &out.Message); err != nil {
			return err
		}
		delete(fields, keyMessage)
	}
	if raw, ok := fields[keyCreatedAt]; ok {
		if err := json.Unmarshal(raw, &out.CreatedAt); err != nil {
			return err
		}
		delete(fields, keyCreatedAt)
	}
	if len(fields) > 0 {
		out.Extra = fields
	}

	*e = out
	return nil
}
