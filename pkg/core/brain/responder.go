// Package brain produces assistant replies for a crisis session. The
// intelligence collaborator receives the cleaned conversation so far plus the
// active mode and returns raw text that may carry inline control tokens; the
// crisis package interprets those downstream.
package brain

import (
	"context"

	"github.com/vigil-live/vigil/pkg/core/crisis"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation history handed to the responder.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Responder generates a raw assistant reply. The returned text may contain
// mode and signal tokens; it is never sent to the user verbatim.
type Responder interface {
	Respond(ctx context.Context, transcript string, mode crisis.Mode, history []Message) (string, error)
}
