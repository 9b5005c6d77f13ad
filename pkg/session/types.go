// Package session provides conversation history storage for chatd.
// A session is an opaque string identifier mapping to an ordered,
// length-capped list of conversation turns.
package session

// Role identifies the author of a turn.
type Role string

const (
	// RoleUser marks a turn written by the caller.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
)

// Turn is a single exchange unit in a conversation.
// Turns are immutable once appended to a session.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Trim returns the most recent limit turns. The oldest turns are dropped
// first. A limit of zero or less disables trimming.
func Trim(turns []Turn, limit int) []Turn {
	if limit <= 0 || len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}
