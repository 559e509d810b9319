package repositories

import (
	"context"

	"github.com/grovesolutions/sapling-live/domain/entities"
)

// TranscriptRepository persists completed conversation transcripts.
type TranscriptRepository interface {
	Save(ctx context.Context, conversation *entities.Conversation) error
	ListByClient(ctx context.Context, clientID string, limit int64) ([]*entities.Conversation, error)
}
