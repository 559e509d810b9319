package api

import (
	"time"

	"github.com/grovesolutions/sapling-live/domain/entities"
)

// ClientAuthRequest represents the request payload for client authentication
type ClientAuthRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// ClientAuthResponse represents the response payload for client authentication
type ClientAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// LiveTokenRequest represents the request payload for an ephemeral live token
type LiveTokenRequest struct {
	SystemInstruction string `json:"system_instruction,omitempty"`
}

// LiveTokenResponse carries the ephemeral credential for one live session.
type LiveTokenResponse struct {
	Token             string    `json:"token"`
	Model             string    `json:"model"`
	SystemInstruction string    `json:"systemInstruction,omitempty"`
	ExpireTime        time.Time `json:"expireTime"`
}

// ConversationsResponse represents the conversation history payload
type ConversationsResponse struct {
	Conversations []*entities.Conversation `json:"conversations"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
