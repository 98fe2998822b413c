package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginPolicy(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "exact match", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:8080", want: true},
		{name: "case insensitive", allowed: []string{"http://LocalHost:8080"}, origin: "HTTP://localhost:8080", want: true},
		{name: "path ignored", allowed: []string{"https://chat.example"}, origin: "https://chat.example/room", want: true},
		{name: "other port", allowed: []string{"http://localhost:8080"}, origin: "http://localhost:9090", want: false},
		{name: "scheme differs", allowed: []string{"https://chat.example"}, origin: "http://chat.example", want: false},
		{name: "missing origin", allowed: []string{"http://localhost:8080"}, origin: "", want: false},
		{name: "garbage origin", allowed: []string{"*"}, origin: "not a url", want: false},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://anywhere.example", want: true},
		{name: "invalid entries skipped", allowed: []string{"localhost", " ", "http://ok.example"}, origin: "http://ok.example", want: true},
		{name: "empty list", allowed: nil, origin: "http://localhost:8080", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := newOriginPolicy(tt.allowed, discardLogger())
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			require.Equal(t, tt.want, policy.checkOrigin(r))
		})
	}
}
