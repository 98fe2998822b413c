package server

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/livechat/internal/chat"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    string
		wantErr string
	}{
		{name: "join", raw: `{"event":"join","data":{"username":"ana"}}`, kind: EventJoin},
		{name: "newUser alias", raw: `{"event":"newUser","data":{"username":"ana"}}`, kind: EventJoin},
		{name: "message", raw: `{"event":"message","data":{"message":"hola"}}`, kind: EventMessage},
		{name: "leave", raw: `{"event":"leave"}`, kind: EventLeave},
		{name: "not json", raw: `hola`, wantErr: "invalid envelope"},
		{name: "missing event", raw: `{"data":{}}`, wantErr: "missing event name"},
		{name: "unknown event", raw: `{"event":"dance"}`, wantErr: "unknown event"},
		{name: "join without data", raw: `{"event":"join"}`, wantErr: "join without data"},
		{name: "blank username", raw: `{"event":"join","data":{"username":"   "}}`, wantErr: "invalid join payload"},
		{name: "username too long", raw: `{"event":"join","data":{"username":"` + strings.Repeat("a", 65) + `"}}`, wantErr: "invalid join payload"},
		{name: "message without text", raw: `{"event":"message","data":{"username":"ana"}}`, wantErr: "invalid message payload"},
		{name: "message not an object", raw: `{"event":"message","data":"hola"}`, wantErr: "invalid message payload"},
		{name: "numeric username", raw: `{"event":"message","data":{"username":7,"message":"x"}}`, wantErr: "username must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent([]byte(tt.raw))
			if tt.wantErr != "" {
				require.ErrorIs(t, err, chat.ErrMalformedEvent)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.kind, ev.kind)
		})
	}
}

func TestDecodeEvent_JoinTrimsUsername(t *testing.T) {
	ev, err := decodeEvent([]byte(`{"event":"join","data":{"username":"  ana "}}`))
	require.NoError(t, err)
	require.Equal(t, "ana", ev.join.Username)
}

func TestDecodeEvent_MessageKeepsExtraFields(t *testing.T) {
	raw := `{"event":"message","data":{"username":"ana","message":"hola","avatar":"a.png","createdAt":"1999-01-01T00:00:00Z"}}`

	ev, err := decodeEvent([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, "ana", ev.message.Username)
	require.Equal(t, "hola", ev.message.Message)
	require.Len(t, ev.message.Extra, 1)
	require.JSONEq(t, `"a.png"`, string(ev.message.Extra["avatar"]))
}

func TestEncodeEvent(t *testing.T) {
	payload, err := encodeEvent(EventUserConnected, PresenceUpdate{Username: "ana", ConnectedUsers: []string{"ana"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"userConnected","data":{"username":"ana","connectedUsers":["ana"]}}`, string(payload))

	payload, err = encodeEvent(EventMessageLogs, []chat.Entry{})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	require.Equal(t, EventMessageLogs, env.Event)
	require.JSONEq(t, `[]`, string(env.Data))
}
