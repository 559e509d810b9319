package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/entities"
)

type fakeTranscriptRepo struct {
	saved []*entities.Conversation
	err   error
}

func (f *fakeTranscriptRepo) Save(ctx context.Context, c *entities.Conversation) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, c)
	return nil
}

func (f *fakeTranscriptRepo) ListByClient(ctx context.Context, clientID string, limit int64) ([]*entities.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.saved, nil
}

func TestArchiveStoresConversation(t *testing.T) {
	repo := &fakeTranscriptRepo{}
	svc := NewTranscriptService(repo, zap.NewNop())

	entries := []entities.TranscriptEntry{
		entities.NewTranscriptEntry(entities.RoleSystem, "Connected to Sapling AI"),
		entities.NewTranscriptEntry(entities.RoleUser, "hello"),
		entities.NewTranscriptEntry(entities.RoleAssistant, "hi there"),
	}
	if err := svc.Archive(context.Background(), "client-1", "Aoede", entries); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	if len(repo.saved) != 1 {
		t.Fatalf("expected one saved conversation, got %d", len(repo.saved))
	}
	saved := repo.saved[0]
	if saved.ClientID != "client-1" || saved.VoiceName != "Aoede" {
		t.Errorf("unexpected conversation metadata: %+v", saved)
	}
	if len(saved.Entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(saved.Entries))
	}
	if saved.EndedAt.IsZero() {
		t.Error("conversation not closed before save")
	}
}

func TestArchiveSkipsEmptyConversations(t *testing.T) {
	repo := &fakeTranscriptRepo{}
	svc := NewTranscriptService(repo, zap.NewNop())

	entries := []entities.TranscriptEntry{
		entities.NewTranscriptEntry(entities.RoleSystem, "Connected to Sapling AI"),
		entities.NewTranscriptEntry(entities.RoleSystem, "Disconnected from Sapling AI"),
	}
	if err := svc.Archive(context.Background(), "client-1", "Aoede", entries); err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if len(repo.saved) != 0 {
		t.Errorf("system-only conversation was stored")
	}
}

func TestArchivePropagatesRepositoryError(t *testing.T) {
	repo := &fakeTranscriptRepo{err: errors.New("write concern failed")}
	svc := NewTranscriptService(repo, zap.NewNop())

	entries := []entities.TranscriptEntry{
		entities.NewTranscriptEntry(entities.RoleUser, "hello"),
	}
	if err := svc.Archive(context.Background(), "client-1", "Aoede", entries); err == nil {
		t.Error("expected error from failing repository")
	}
}
