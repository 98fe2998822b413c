package chat

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Second)
		return current
	}
}

func TestMessageLog_Append_StampsWithServerClock(t *testing.T) {
	req := require.New(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	log := NewMessageLog(nil, WithClock(fixedClock(start)))

	forged := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	n := log.Append(Entry{Username: "alice", Message: "hi", CreatedAt: forged})

	req.Equal(1, n)
	snapshot := log.Snapshot()
	req.Len(snapshot, 1)
	req.Equal(start.Add(time.Second), snapshot[0].CreatedAt)
	req.Equal("alice", snapshot[0].Username)
}

func TestMessageLog_Append_ReturnsNewLength(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog([]Entry{{Username: "bob", Message: "old"}})

	req.Equal(2, log.Append(Entry{Username: "alice", Message: "one"}))
	req.Equal(3, log.Append(Entry{Username: "alice", Message: "two"}))
	req.Equal(3, log.Len())
}

func TestMessageLog_Snapshot_IsACopy(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog(nil)
	log.Append(Entry{
		Username: "alice",
		Message:  "first",
		Extra:    map[string]json.RawMessage{"color": json.RawMessage(`"red"`)},
	})

	before := log.Snapshot()
	log.Append(Entry{Username: "bob", Message: "second"})
	before[0].Message = "tampered"
	before[0].Extra["color"] = json.RawMessage(`"blue"`)

	after := log.Snapshot()
	req.Len(before, 1)
	req.Len(after, 2)
	req.Equal("first", after[0].Message)
	req.JSONEq(`"red"`, string(after[0].Extra["color"]))
}

func TestMessageLog_Snapshot_EmptyIsNotNil(t *testing.T) {
	req := require.New(t)
	b, err := json.Marshal(NewMessageLog(nil).Snapshot())
	req.NoError(err)
	req.Equal("[]", string(b))
}

func TestMessageLog_ConcurrentAppends_KeepEveryEntry(t *testing.T) {
	req := require.New(t)
	log := NewMessageLog(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Append(Entry{Username: "alice", Message: "x"})
		}()
	}
	wg.Wait()

	req.Equal(50, log.Len())
}

func TestEntry_JSON_RoundTrip(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	entry := Entry{
		Username:  "alice",
		Message:   "hi",
		CreatedAt: at,
		Extra:     map[string]json.RawMessage{"avatar": json.RawMessage(`"cat.png"`)},
	}

	b, err := json.Marshal(entry)
	req.NoError(err)
	req.JSONEq(`{"username":"alice","message":"hi","createdAt":"2024-05-01T12:00:00.123456789Z","avatar":"cat.png"}`, string(b))

	var decoded Entry
	req.NoError(json.Unmarshal(b, &decoded))
	req.True(at.Equal(decoded.CreatedAt))
	req.Equal("alice", decoded.Username)
	req.JSONEq(`"cat.png"`, string(decoded.Extra["avatar"]))
}

func TestEntry_MarshalJSON_OmitsAbsentUsername(t *testing.T) {
	req := require.New(t)
	entry := Entry{
		Message: "anonymous",
		Extra:   map[string]json.RawMessage{"username": json.RawMessage(`"mallory"`)},
	}

	b, err := json.Marshal(entry)
	req.NoError(err)

	var fields map[string]any
	req.NoError(json.Unmarshal(b, &fields))
	req.NotContains(fields, "username")
	req.Equal("anonymous", fields["message"])
}

func TestEntry_MarshalJSON_ExtraCannotOverrideReservedKeys(t *testing.T) {
	req := require.New(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entry := Entry{
		Username:  "alice",
		Message:   "real",
		CreatedAt: at,
		Extra: map[string]json.RawMessage{
			"message":   json.RawMessage(`"fake"`),
			"createdAt": json.RawMessage(`"1999-01-01T00:00:00Z"`),
		},
	}

	b, err := json.Marshal(entry)
	req.NoError(err)
	req.JSONEq(`{"username":"alice","message":"real","createdAt":"2024-05-01T12:00:00Z"}`, string(b))
}
