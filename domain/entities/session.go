package entities

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is the persisted record of one live voice session: the ordered
// transcript plus when the session started and ended. It is written once, when
// the session closes.
type Conversation struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID  string             `json:"client_id" bson:"client_id"`
	VoiceName string             `json:"voice_name" bson:"voice_name"`
	StartedAt time.Time          `json:"started_at" bson:"started_at"`
	EndedAt   time.Time          `json:"ended_at" bson:"ended_at"`
	Entries   []TranscriptEntry  `json:"entries" bson:"entries"`
}

// NewConversation creates a conversation record for a client session
func NewConversation(clientID, voiceName string) *Conversation {
	return &Conversation{
		ID:        primitive.NewObjectID(),
		ClientID:  clientID,
		VoiceName: voiceName,
		StartedAt: time.Now(),
		Entries:   make([]TranscriptEntry, 0),
	}
}

// Append adds transcript entries to the record
func (c *Conversation) Append(entries ...TranscriptEntry) {
	c.Entries = append(c.Entries, entries...)
}

// Close stamps the end of the session
func (c *Conversation) Close() {
	c.EndedAt = time.Now()
}

// Empty reports whether the conversation carries no utterances worth keeping
func (c *Conversation) Empty() bool {
	for _, e := range c.Entries {
		if e.Role == RoleUser || e.Role == RoleAssistant {
			return false
		}
	}
	return true
}
