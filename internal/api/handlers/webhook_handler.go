package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/postline/postline/configs"
	"github.com/postline/postline/internal/platform"
	"github.com/postline/postline/internal/repository"
	"github.com/postline/postline/pkg/crypto"
)

// WebhookHandler answers Telegram callback queries. The button payload
// carries everything needed, so no lookup beyond the bot token happens.
type WebhookHandler struct {
	cfg config.Config
	ur  repository.UserRepository
	cr  repository.CredentialsRepository
	tg  *platform.TelegramAdapter
}

func NewWebhookHandler(cfg config.Config, ur repository.UserRepository, cr repository.CredentialsRepository, tg *platform.TelegramAdapter) *WebhookHandler {
	return &WebhookHandler{cfg: cfg, ur: ur, cr: cr, tg: tg}
}

// Telegram always answers 200: the bot API retries anything else.
func (h *WebhookHandler) Telegram(c *fiber.Ctx) error {
	var update struct {
		CallbackQuery *struct {
			ID   string `json:"id"`
			Data string `json:"data"`
		} `json:"callback_query"`
	}
	if err := c.BodyParser(&update); err != nil {
		slog.Info(err.Error())
		return c.SendStatus(fiber.StatusOK)
	}
	if update.CallbackQuery == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	userID, text, ok := platform.DecodeCallbackPayload(update.CallbackQuery.Data)
	if !ok {
		return c.SendStatus(fiber.StatusOK)
	}

	user, found, err := h.ur.GetByID(c.Context(), userID)
	if err != nil || !found {
		return c.SendStatus(fiber.StatusOK)
	}

	creds, err := h.cr.GetByProjectID(c.Context(), user.CurrentProjectID)
	if err != nil || creds == nil {
		return c.SendStatus(fiber.StatusOK)
	}

	token := crypto.DecryptOrEmpty(creds.TgToken, []byte(h.cfg.SecretKey))
	if token == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	if err := h.tg.AnswerCallback(c.Context(), token, update.CallbackQuery.ID, text); err != nil {
		slog.Info(err.Error())
	}

	return c.SendStatus(fiber.StatusOK)
}
