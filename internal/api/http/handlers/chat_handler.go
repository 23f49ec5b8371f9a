package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/factory-support/internal/api/dto"
	"github.com/spec-kit/factory-support/internal/auth"
	"github.com/spec-kit/factory-support/internal/repository"
	"github.com/spec-kit/factory-support/internal/service"
	apperrors "github.com/spec-kit/factory-support/pkg/util/errorutil"
)

const maxHistoryLimit = 500

// ChatHandler serves issue chat history over HTTP.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// ListMessages GET /api/chats/:issueId/messages.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	issueID, err := issueIDParam(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c)
	if err != nil {
		return err
	}

	msgs, err := h.chat.GetHistory(c.UserContext(), identity, issueID, page)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChatMessages(msgs)})
}

// PostMessage POST /api/chats/:issueId/messages. The message is stored but
// not pushed to websocket subscribers.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	issueID, err := issueIDParam(c)
	if err != nil {
		return err
	}
	var req dto.PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.chat.PostMessage(c.UserContext(), identity, issueID, req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewChatMessage(msg)})
}

// issueIDParam rejects ids that are not positive integers.
func issueIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Params("issueId")), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("invalid issue id", nil)
	}
	return id, nil
}

func parsePage(c *fiber.Ctx) (repository.Page, error) {
	var page repository.Page
	if raw := c.Query("after_id"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return page, apperrors.NewValidationError("after_id must be a non-negative integer", nil)
		}
		page.AfterID = v
	}
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return page, apperrors.NewValidationError("limit must be a positive integer", nil)
		}
		if v > maxHistoryLimit {
			v = maxHistoryLimit
		}
		page.Limit = v
	}
	return page, nil
}
