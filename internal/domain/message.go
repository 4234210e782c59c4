// Package domain defines the core domain models for the chat relay.
package domain

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a role the relay persists.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MessageID is the store-assigned, monotonically increasing message key.
type MessageID int64

// HistoryEntry is the {role, content} record used for replay, for the
// directory history endpoint and as completion context.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
