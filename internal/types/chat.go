package types

import "time"

// Conversation ---------------------------------------------------------------

type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// WelcomeMessageID marks the greeting that opens every session. It is shown to
// the user but never replayed to the model.
const WelcomeMessageID = "init"

type ChatMessage struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	ReasoningNote string    `json:"reasoningNote,omitempty"`
}
