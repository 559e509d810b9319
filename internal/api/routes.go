package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/grovesolutions/sapling-live/domain/repositories"
	"github.com/grovesolutions/sapling-live/internal/auth"
	"github.com/grovesolutions/sapling-live/internal/websocket"
	"github.com/grovesolutions/sapling-live/usecase"
)

// Deps are the collaborators the route handlers need.
type Deps struct {
	Hub          *websocket.Hub
	Tokens       repositories.CredentialService
	Transcripts  *usecase.TranscriptService
	Auth         *auth.Authenticator
	ClientSecret string
	Logger       *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Deps) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "sapling-live",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	// Client authentication
	v1.POST("/clients/auth", func(c echo.Context) error {
		return clientAuth(c, deps)
	})

	// Ephemeral live token, gated by client JWT
	v1.POST("/live/token", func(c echo.Context) error {
		return liveToken(c, deps)
	})

	// Conversation history
	v1.GET("/conversations", func(c echo.Context) error {
		return getConversations(c, deps)
	})

	// WebSocket voice gateway with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(c, deps)
	})
}

// clientAuth exchanges the shared client secret for a client JWT.
func clientAuth(c echo.Context, deps Deps) error {
	var req ClientAuthRequest
	if err := c.Bind(&req); err != nil {
		deps.Logger.Error("Failed to bind client auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.ClientID == "" || req.ClientSecret == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Client ID and client secret are required",
		})
	}

	if deps.ClientSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(deps.ClientSecret)) != 1 {
		deps.Logger.Warn("Client authentication failed",
			zap.String("client_id", req.ClientID))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid client credentials",
		})
	}

	token, expiresAt, err := deps.Auth.GenerateClientToken(req.ClientID)
	if err != nil {
		deps.Logger.Error("Failed to generate client token",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	deps.Logger.Info("Client authenticated successfully",
		zap.String("client_id", req.ClientID))

	return c.JSON(http.StatusOK, ClientAuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  req.ClientID,
	})
}

// liveToken mints an ephemeral credential for one live session.
func liveToken(c echo.Context, deps Deps) error {
	claims, ok := authenticate(c, deps)
	if !ok {
		return nil
	}

	var req LiveTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	credential, err := deps.Tokens.CreateToken(c.Request().Context(), req.SystemInstruction)
	if err != nil {
		deps.Logger.Error("Failed to mint live token",
			zap.String("client_id", claims.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "token_mint_failed",
			Message: "Failed to create live session token",
		})
	}

	return c.JSON(http.StatusOK, LiveTokenResponse{
		Token:             credential.Token,
		Model:             credential.Model,
		SystemInstruction: credential.SystemInstruction,
		ExpireTime:        credential.ExpireTime,
	})
}

// getConversations returns the authenticated client's recent conversations.
func getConversations(c echo.Context, deps Deps) error {
	claims, ok := authenticate(c, deps)
	if !ok {
		return nil
	}

	conversations, err := deps.Transcripts.History(c.Request().Context(), claims.ClientID, 20)
	if err != nil {
		deps.Logger.Error("Failed to list conversations",
			zap.String("client_id", claims.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to load conversation history",
		})
	}

	return c.JSON(http.StatusOK, ConversationsResponse{Conversations: conversations})
}

// authenticate extracts and validates the Bearer token. When it returns
// false the error response has already been written.
func authenticate(c echo.Context, deps Deps) (*auth.ClientClaims, bool) {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}

	if token == "" {
		_ = c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required in Authorization header",
		})
		return nil, false
	}

	claims, err := deps.Auth.ValidateToken(token)
	if err != nil {
		deps.Logger.Warn("Request rejected: invalid token", zap.Error(err))
		_ = c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
		return nil, false
	}

	if claims.Role != "client" {
		_ = c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only client tokens are allowed",
		})
		return nil, false
	}
	if claims.ClientID == "" {
		_ = c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
		return nil, false
	}
	return claims, true
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(c echo.Context, deps Deps) error {
	claims, ok := authenticate(c, deps)
	if !ok {
		return nil
	}

	deps.Logger.Info("WebSocket connection authenticated",
		zap.String("client_id", claims.ClientID))

	return websocket.HandleWebSocketWithAuth(deps.Hub, c, claims.ClientID, deps.Logger)
}
