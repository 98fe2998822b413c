package chat

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Join_AddsUsernameInJoinOrder(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	presence, err := r.Join("c1", "alice")
	req.NoError(err)
	req.Equal([]string{"alice"}, presence)

	presence, err = r.Join("c2", "bob")
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, presence)
	req.Equal([]string{"alice", "bob"}, r.Presence())
}

func TestRegistry_Join_IsIdempotent(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Join("c1", "alice")
	req.NoError(err)
	presence, err := r.Join("c1", "alice")
	req.NoError(err)
	req.Equal([]string{"alice"}, presence)
}

func TestRegistry_Join_RejectsRename(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Join("c1", "alice")
	req.NoError(err)

	presence, err := r.Join("c1", "mallory")
	req.ErrorIs(err, ErrAlreadyIdentified)
	req.Equal([]string{"alice"}, presence)

	username, ok := r.Username("c1")
	req.True(ok)
	req.Equal("alice", username)
}

func TestRegistry_Join_RejectsEmptyUsername(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Join("c1", "")
	req.ErrorIs(err, ErrMalformedEvent)
	req.Empty(r.Presence())
}

func TestRegistry_DuplicateUsernamesCollapse(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Join("c1", "alice")
	req.NoError(err)
	presence, err := r.Join("c2", "alice")
	req.NoError(err)
	req.Equal([]string{"alice"}, presence)

	// The first leave removes the shared presence entry.
	username, presence, err := r.Leave("c1")
	req.NoError(err)
	req.Equal("alice", username)
	req.Empty(presence)

	username, presence, err = r.Leave("c2")
	req.NoError(err)
	req.Equal("alice", username)
	req.Empty(presence)
}

func TestRegistry_Leave_UnknownConnection(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	_, err := r.Join("c1", "alice")
	req.NoError(err)

	username, presence, err := r.Leave("nobody")
	req.ErrorIs(err, ErrUnknownConnection)
	req.Empty(username)
	req.Equal([]string{"alice"}, presence)
}

func TestRegistry_Leave_Twice(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	_, err := r.Join("c1", "alice")
	req.NoError(err)

	_, _, err = r.Leave("c1")
	req.NoError(err)
	_, _, err = r.Leave("c1")
	req.ErrorIs(err, ErrUnknownConnection)
}

func TestRegistry_Presence_EmptyIsNotNil(t *testing.T) {
	require.NotNil(t, NewRegistry().Presence())
}

// Random join/leave sequences with distinct usernames must leave presence
// equal to the users that joined and have not left.
func TestRegistry_Presence_MatchesModelUnderRandomInterleavings(t *testing.T) {
	req := require.New(t)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		r := NewRegistry()
		model := map[string]bool{}

		for step := 0; step < 200; step++ {
			id := fmt.Sprintf("c%d", rng.Intn(15))
			if rng.Intn(2) == 0 {
				if _, ok := r.Username(id); ok {
					continue
				}
				_, err := r.Join(id, "user-"+id)
				req.NoError(err)
				model["user-"+id] = true
			} else {
				username, _, err := r.Leave(id)
				if err != nil {
					req.ErrorIs(err, ErrUnknownConnection)
					continue
				}
				delete(model, username)
			}

			expected := make([]string, 0, len(model))
			for name := range model {
				expected = append(expected, name)
			}
			got := r.Presence()
			sort.Strings(expected)
			sort.Strings(got)
			req.Equal(expected, got)
		}
	}
}
