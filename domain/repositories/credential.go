package repositories

import (
	"context"

	"github.com/grovesolutions/sapling-live/domain/entities"
)

// CredentialService mints short-lived, single-use tokens for the remote
// streaming endpoint. The system instruction override is optional; the
// service resolves the instruction that will actually be used and returns it
// with the credential.
type CredentialService interface {
	CreateToken(ctx context.Context, systemInstruction string) (entities.Credential, error)
}
