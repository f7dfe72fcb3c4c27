package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/phxgg/kickbridge/internal/kick"
	apperrors "github.com/phxgg/kickbridge/internal/platform/errors"
)

// requestClient returns the upstream client the ensureClient middleware
// attached, or nil when the subject has no linked upstream account.
func requestClient(c echo.Context) *kick.Client {
	client, _ := c.Get(ctxKeyClient).(*kick.Client)
	return client
}

func (s *Server) handleCurrentUser(c echo.Context) error {
	client := requestClient(c)
	if client == nil {
		return apperrors.NotFoundError("no linked upstream account")
	}

	user, err := client.CurrentUser(c.Request().Context())
	if err != nil {
		return apperrors.ExternalError("failed to fetch upstream user", err)
	}

	if err := c.JSON(http.StatusOK, user); err != nil {
		return fmt.Errorf("failed to write user response: %w", err)
	}
	return nil
}

func (s *Server) handleChannelBySlug(c echo.Context) error {
	client := requestClient(c)
	if client == nil {
		return apperrors.NotFoundError("no linked upstream account")
	}

	slug := c.Param("slug")
	if slug == "" {
		return apperrors.ValidationError("missing channel slug")
	}

	channel, err := client.ChannelBySlug(c.Request().Context(), slug)
	if err != nil {
		return apperrors.ExternalError("failed to fetch channel", err)
	}

	if err := c.JSON(http.StatusOK, channel); err != nil {
		return fmt.Errorf("failed to write channel response: %w", err)
	}
	return nil
}

type sendChatRequest struct {
	BroadcasterUserID int64  `json:"broadcaster_user_id"`
	Content           string `json:"content"`
}

func (s *Server) handleSendChat(c echo.Context) error {
	client := requestClient(c)
	if client == nil {
		return apperrors.NotFoundError("no linked upstream account")
	}

	var req sendChatRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if req.BroadcasterUserID == 0 || req.Content == "" {
		return apperrors.ValidationError("broadcaster_user_id and content are required")
	}

	messageID, err := client.SendChatMessage(c.Request().Context(), req.BroadcasterUserID, req.Content)
	if err != nil {
		return apperrors.ExternalError("failed to send chat message", err)
	}

	if err := c.JSON(http.StatusOK, map[string]string{"message_id": messageID}); err != nil {
		return fmt.Errorf("failed to write chat response: %w", err)
	}
	return nil
}
