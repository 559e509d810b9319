package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/domain/repositories"
)

// defaultTokenEndpoint is the v1alpha ephemeral token endpoint. The SDK
// client in use does not expose the auth token service, so minting goes over
// REST with the same wire shape the service expects.
const defaultTokenEndpoint = "https://generativelanguage.googleapis.com/v1alpha/auth_tokens"

// TokenService mints single-session ephemeral tokens with the server's
// long-lived API key. Implements repositories.CredentialService.
type TokenService struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
	ttl        time.Duration
	logger     *zap.Logger
}

var _ repositories.CredentialService = (*TokenService)(nil)

// NewTokenService creates a token service bound to one live model.
func NewTokenService(apiKey, model string, ttl time.Duration, logger *zap.Logger) (*TokenService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	return &TokenService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   defaultTokenEndpoint,
		apiKey:     apiKey,
		model:      model,
		ttl:        ttl,
		logger:     logger,
	}, nil
}

type authTokenRequest struct {
	Uses                 int            `json:"uses"`
	ExpireTime           time.Time      `json:"expireTime"`
	NewSessionExpireTime time.Time      `json:"newSessionExpireTime"`
	BidiSetup            *authBidiSetup `json:"bidiGenerateContentSetup,omitempty"`
}

type authBidiSetup struct {
	Setup authModelSetup `json:"setup"`
}

type authModelSetup struct {
	Model string `json:"model"`
}

type authTokenResponse struct {
	Name string `json:"name"`
}

// CreateToken implements repositories.CredentialService. The token is locked
// to the configured model and good for one session start.
func (s *TokenService) CreateToken(ctx context.Context, systemInstruction string) (entities.Credential, error) {
	expireTime := time.Now().Add(s.ttl)

	body, err := json.Marshal(authTokenRequest{
		Uses:                 1,
		ExpireTime:           expireTime,
		NewSessionExpireTime: time.Now().Add(2 * time.Minute),
		BidiSetup:            &authBidiSetup{Setup: authModelSetup{Model: qualifiedModel(s.model)}},
	})
	if err != nil {
		return entities.Credential{}, fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return entities.Credential{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return entities.Credential{}, fmt.Errorf("mint ephemeral token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return entities.Credential{}, fmt.Errorf("mint ephemeral token: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var token authTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return entities.Credential{}, fmt.Errorf("decode token response: %w", err)
	}
	if token.Name == "" {
		return entities.Credential{}, fmt.Errorf("token response carried no token name")
	}

	s.logger.Info("Ephemeral live token minted",
		zap.String("model", s.model),
		zap.Time("expireTime", expireTime))

	return entities.Credential{
		Token:             token.Name,
		Model:             s.model,
		SystemInstruction: systemInstruction,
		ExpireTime:        expireTime,
	}, nil
}

// qualifiedModel expands a bare model ID into the resource name the token
// service requires.
func qualifiedModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}
