package agentclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserTurn_WireShape(t *testing.T) {
	data, err := json.Marshal(UserTurn("hello"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "user", decoded["type"])
	require.NotContains(t, decoded, "session_id")

	msg := decoded["message"].(map[string]any)
	require.Equal(t, "user", msg["role"])
	require.Equal(t, "hello", msg["content"])
}

func TestTurns_EarlyStop(t *testing.T) {
	seq := Turns(UserTurn("a"), UserTurn("b"), UserTurn("c"))

	var seen []string

	for turn := range seq {
		seen = append(seen, turn.Message.Content)

		if len(seen) == 2 {
			break
		}
	}

	require.Equal(t, []string{"a", "b"}, seen)
}

func TestTurnsFromChannel(t *testing.T) {
	ch := make(chan Turn, 2)
	ch <- UserTurn("x")
	ch <- UserTurn("y")
	close(ch)

	var seen []string

	for turn := range TurnsFromChannel(ch) {
		seen = append(seen, turn.Message.Content)
	}

	require.Equal(t, []string{"x", "y"}, seen)
}

func TestSingleTurn(t *testing.T) {
	count := 0

	for turn := range SingleTurn("only") {
		require.Equal(t, "only", turn.Message.Content)
		count++
	}

	require.Equal(t, 1, count)
}
