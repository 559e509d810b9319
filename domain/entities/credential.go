package entities

import "time"

// Credential is the ephemeral, single-use token minted per live session.
// It is presented as the authentication material when opening the remote
// streaming connection and carries a server-assigned expiry.
type Credential struct {
	Token             string    `json:"token"`
	Model             string    `json:"model"`
	SystemInstruction string    `json:"systemInstruction"`
	ExpireTime        time.Time `json:"expireTime"`
}

// Expired reports whether the credential is past its server-assigned expiry
func (c Credential) Expired() bool {
	return !c.ExpireTime.IsZero() && time.Now().After(c.ExpireTime)
}
