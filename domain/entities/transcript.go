package entities

import "time"

// Role represents the speaker of a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleError     Role = "error"
)

// TranscriptEntry represents one logical utterance in a live conversation.
// Entries are immutable once appended; ordering is append order.
type TranscriptEntry struct {
	Role      Role      `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// NewTranscriptEntry creates a transcript entry stamped with the current time
func NewTranscriptEntry(role Role, content string) TranscriptEntry {
	return TranscriptEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}
