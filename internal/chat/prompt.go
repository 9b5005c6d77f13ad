// Package chat implements the conversation relay: prompt assembly from
// stored history and the per-request exchange flow.
package chat

import (
	"github.com/atendai/chatd/internal/provider"
	"github.com/atendai/chatd/pkg/session"
)

// AssemblePrompt builds the message sequence sent to the completion
// provider: the system instruction first, each history turn in stored
// order, and the new user message last. It is a pure function and never
// mutates the history.
func AssemblePrompt(systemPrompt string, history []session.Turn, message string) []provider.Message {
	messages := make([]provider.Message, 0, len(history)+2)

	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt,
	})
	for _, turn := range history {
		messages = append(messages, provider.Message{
			Role:    string(turn.Role),
			Content: turn.Text,
		})
	}
	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: message,
	})

	return messages
}
