package agentclient

import "iter"

// TurnContent is the role and text of an input turn.
type TurnContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Turn is one input message sent to the process in streaming mode.
//
//nolint:tagliatelle // wire protocol uses snake_case
type Turn struct {
	Type            string      `json:"type"`
	Message         TurnContent `json:"message"`
	ParentToolUseID *string     `json:"parent_tool_use_id,omitempty"`
	SessionID       string      `json:"session_id,omitempty"`
}

// UserTurn builds a user turn from plain text.
func UserTurn(content string) Turn {
	return Turn{
		Type:    "user",
		Message: TurnContent{Role: "user", Content: content},
	}
}

// Turns adapts a slice to the turn iterator QueryStream and
// ConnectWithStream consume.
func Turns(turns ...Turn) iter.Seq[Turn] {
	return func(yield func(Turn) bool) {
		for _, turn := range turns {
			if !yield(turn) {
				return
			}
		}
	}
}

// TurnsFromChannel adapts a channel to a turn iterator. The iterator
// completes when the channel closes.
func TurnsFromChannel(ch <-chan Turn) iter.Seq[Turn] {
	return func(yield func(Turn) bool) {
		for turn := range ch {
			if !yield(turn) {
				return
			}
		}
	}
}

// SingleTurn is a one-element turn iterator for simple prompts.
func SingleTurn(content string) iter.Seq[Turn] {
	return Turns(UserTurn(content))
}
