package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lerndmina/Heimdall-sub004/internal/auth"
	apperrors "github.com/lerndmina/Heimdall-sub004/pkg/util"
)

// AuthHandler exchanges configured API keys for short-lived bearer tokens.
type AuthHandler struct {
	keyHashes []string
	tokens    *auth.TokenManager
}

// NewAuthHandler returns a new handler instance.
func NewAuthHandler(keyHashes []string, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{keyHashes: keyHashes, tokens: tokens}
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

// Token validates an API key and issues a JWT.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid request body", nil)
	}
	if req.APIKey == "" {
		return apperrors.NewValidationError("api_key is required", nil)
	}

	keyIndex, err := auth.VerifyAPIKey(h.keyHashes, req.APIKey)
	if err != nil {
		return apperrors.NewUnauthorized("invalid api key")
	}

	token, expiresAt, err := h.tokens.GenerateToken(keyIndex)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_at":   expiresAt,
	})
}
