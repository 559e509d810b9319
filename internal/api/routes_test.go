package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/internal/auth"
	"github.com/grovesolutions/sapling-live/usecase"
)

type fakeTokens struct {
	cred entities.Credential
	err  error
}

func (f *fakeTokens) CreateToken(ctx context.Context, systemInstruction string) (entities.Credential, error) {
	if f.err != nil {
		return entities.Credential{}, f.err
	}
	cred := f.cred
	cred.SystemInstruction = systemInstruction
	return cred, nil
}

type fakeTranscripts struct {
	conversations []*entities.Conversation
	err           error
}

func (f *fakeTranscripts) Save(ctx context.Context, c *entities.Conversation) error { return f.err }

func (f *fakeTranscripts) ListByClient(ctx context.Context, clientID string, limit int64) ([]*entities.Conversation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conversations, nil
}

func newTestServer(t *testing.T, tokens *fakeTokens, transcripts *fakeTranscripts) (*echo.Echo, *auth.Authenticator) {
	t.Helper()
	e := echo.New()
	authn := auth.NewAuthenticator([]byte("test-secret"))
	InitRoutes(e, Deps{
		Tokens:       tokens,
		Transcripts:  usecase.NewTranscriptService(transcripts, zap.NewNop()),
		Auth:         authn,
		ClientSecret: "shared-secret",
		Logger:       zap.NewNop(),
	})
	return e, authn
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t, &fakeTokens{}, &fakeTranscripts{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestClientAuth(t *testing.T) {
	e, _ := newTestServer(t, &fakeTokens{}, &fakeTranscripts{})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid credentials", `{"client_id":"c1","client_secret":"shared-secret"}`, http.StatusOK},
		{"wrong secret", `{"client_id":"c1","client_secret":"nope"}`, http.StatusUnauthorized},
		{"missing fields", `{"client_id":"c1"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/clients/auth", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusOK {
				var resp ClientAuthResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("bad response body: %v", err)
				}
				if resp.Token == "" || resp.ClientID != "c1" {
					t.Errorf("unexpected auth response: %+v", resp)
				}
			}
		})
	}
}

func TestLiveTokenRequiresAuth(t *testing.T) {
	e, _ := newTestServer(t, &fakeTokens{}, &fakeTranscripts{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/live/token", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

func TestLiveTokenMintsCredential(t *testing.T) {
	expire := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	tokens := &fakeTokens{cred: entities.Credential{
		Token:      "ephemeral-token",
		Model:      "live-model",
		ExpireTime: expire,
	}}
	e, authn := newTestServer(t, tokens, &fakeTranscripts{})

	jwt, _, err := authn.GenerateClientToken("c1")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	body := `{"system_instruction":"be brief"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/live/token", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp LiveTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if resp.Token != "ephemeral-token" || resp.Model != "live-model" {
		t.Errorf("unexpected token response: %+v", resp)
	}
	if resp.SystemInstruction != "be brief" {
		t.Errorf("system instruction not echoed: %q", resp.SystemInstruction)
	}
}

func TestLiveTokenMintFailure(t *testing.T) {
	e, authn := newTestServer(t, &fakeTokens{err: errors.New("quota")}, &fakeTranscripts{})

	jwt, _, _ := authn.GenerateClientToken("c1")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/live/token", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on mint failure, got %d", rec.Code)
	}
}

func TestGetConversations(t *testing.T) {
	conv := entities.NewConversation("c1", "Aoede")
	conv.Append(entities.NewTranscriptEntry(entities.RoleUser, "hi"))
	e, authn := newTestServer(t, &fakeTokens{}, &fakeTranscripts{
		conversations: []*entities.Conversation{conv},
	})

	jwt, _, _ := authn.GenerateClientToken("c1")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+jwt)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ConversationsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Conversations) != 1 || resp.Conversations[0].ClientID != "c1" {
		t.Errorf("unexpected conversations: %+v", resp.Conversations)
	}
}

func TestAPIClientCreateToken(t *testing.T) {
	e, _ := newTestServer(t, &fakeTokens{cred: entities.Credential{
		Token: "ephemeral-token",
		Model: "live-model",
	}}, &fakeTranscripts{})

	server := httptest.NewServer(e)
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Authenticate(context.Background(), "c1", "shared-secret"); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}

	cred, err := client.CreateToken(context.Background(), "be brief")
	if err != nil {
		t.Fatalf("create token failed: %v", err)
	}
	if cred.Token != "ephemeral-token" || cred.Model != "live-model" {
		t.Errorf("unexpected credential: %+v", cred)
	}
	if cred.SystemInstruction != "be brief" {
		t.Errorf("system instruction lost in transit: %q", cred.SystemInstruction)
	}
}

func TestAPIClientRejectsBadSecret(t *testing.T) {
	e, _ := newTestServer(t, &fakeTokens{}, &fakeTranscripts{})
	server := httptest.NewServer(e)
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.Authenticate(context.Background(), "c1", "wrong"); err == nil {
		t.Error("authenticate with wrong secret succeeded")
	}
}
