package types

import "fmt"

// MessageRole names the author of an advisor conversation message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

func (r MessageRole) IsValid() bool {
	return r == MessageRoleUser || r == MessageRoleAssistant
}

// ParseMessageRole parses a string into a MessageRole
func ParseMessageRole(s string) (MessageRole, error) {
	r := MessageRole(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid message role: %s", s)
	}
	return r, nil
}
