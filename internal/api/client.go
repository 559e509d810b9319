package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/grovesolutions/sapling-live/domain/entities"
)

// Client is the HTTP client for the server's REST surface. It implements
// repositories.CredentialService so a local session controller can fetch its
// ephemeral tokens through the server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	bearer     string
}

// NewClient creates an API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Authenticate exchanges the client secret for a JWT used on later calls.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) error {
	var resp ClientAuthResponse
	err := c.post(ctx, "/api/v1/clients/auth", ClientAuthRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}, &resp)
	if err != nil {
		return err
	}
	c.bearer = resp.Token
	return nil
}

// CreateToken implements repositories.CredentialService over HTTP.
func (c *Client) CreateToken(ctx context.Context, systemInstruction string) (entities.Credential, error) {
	var resp LiveTokenResponse
	err := c.post(ctx, "/api/v1/live/token", LiveTokenRequest{
		SystemInstruction: systemInstruction,
	}, &resp)
	if err != nil {
		return entities.Credential{}, err
	}
	return entities.Credential{
		Token:             resp.Token,
		Model:             resp.Model,
		SystemInstruction: resp.SystemInstruction,
		ExpireTime:        resp.ExpireTime,
	}, nil
}

// Conversations returns the authenticated client's recent conversation
// history.
func (c *Client) Conversations(ctx context.Context) ([]*entities.Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/conversations", nil)
	if err != nil {
		return nil, err
	}
	var resp ConversationsResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("api %s: %s (%s)", req.URL.Path, apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("api %s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
