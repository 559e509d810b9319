// Package usecase contains the application services sitting between the
// transport layer and the domain.
package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/domain/repositories"
)

// TranscriptService archives completed session transcripts and serves
// conversation history.
type TranscriptService struct {
	transcripts repositories.TranscriptRepository
	logger      *zap.Logger
}

// NewTranscriptService creates a new transcript service
func NewTranscriptService(transcripts repositories.TranscriptRepository, logger *zap.Logger) *TranscriptService {
	return &TranscriptService{
		transcripts: transcripts,
		logger:      logger,
	}
}

// Archive persists the transcript of a finished session. Sessions with no
// user or assistant utterances are dropped rather than stored.
func (s *TranscriptService) Archive(ctx context.Context, clientID, voiceName string, entries []entities.TranscriptEntry) error {
	conversation := entities.NewConversation(clientID, voiceName)
	conversation.Append(entries...)
	conversation.Close()

	if conversation.Empty() {
		s.logger.Debug("Skipping empty conversation",
			zap.String("clientID", clientID))
		return nil
	}

	if err := s.transcripts.Save(ctx, conversation); err != nil {
		s.logger.Error("Failed to archive conversation",
			zap.String("clientID", clientID),
			zap.Error(err))
		return fmt.Errorf("archive conversation: %w", err)
	}

	s.logger.Info("Conversation archived",
		zap.String("clientID", clientID),
		zap.Int("entries", len(conversation.Entries)))
	return nil
}

// History returns the client's most recent conversations.
func (s *TranscriptService) History(ctx context.Context, clientID string, limit int64) ([]*entities.Conversation, error) {
	conversations, err := s.transcripts.ListByClient(ctx, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}
