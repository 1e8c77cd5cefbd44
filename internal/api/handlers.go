package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/fathima-sithara/chat-sync/internal/service"
)

type handlers struct {
	d Deps
}

func newHandlers(d Deps) *handlers {
	return &handlers{d: d}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

func (h *handlers) searchProfiles(c *fiber.Ctx) error {
	term := c.Query("q")
	if term == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q required"})
	}
	profiles, err := h.d.Resolver.SearchProfiles(c.Context(), term)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"profiles": profiles})
}

func (h *handlers) findOrCreate(c *fiber.Ctx) error {
	var body struct {
		OtherID string `json:"other_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.OtherID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "other_id required"})
	}
	conv, err := h.d.Directory.FindOrCreate(c.Context(), userID(c), body.OtherID)
	if err != nil {
		if errors.Is(err, service.ErrSameParticipant) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(conv)
}

func (h *handlers) listMessages(c *fiber.Ctx) error {
	msgs, err := h.d.Thread.Messages(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

// sendMessage surfaces partial send failures with enough detail for the
// client to recover: the draft comes back when nothing was persisted, and the
// stored message comes back when only a denormalized update failed.
func (h *handlers) sendMessage(c *fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	msg, err := h.d.Thread.Send(c.Context(), service.SendMessageCommand{
		ConversationID: c.Params("id"),
		SenderID:       userID(c),
		Text:           body.Text,
	})
	if err != nil {
		var serr *service.SendError
		if errors.As(err, &serr) {
			resp := fiber.Map{"error": serr.Error(), "failed_step": string(serr.Step)}
			if serr.Persisted != nil {
				resp["message"] = serr.Persisted
			} else {
				resp["draft"] = body.Text
			}
			return c.Status(fiber.StatusBadGateway).JSON(resp)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "draft": body.Text})
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *handlers) setTyping(c *fiber.Ctx) error {
	var body struct {
		Typing bool `json:"typing"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	h.d.Presence.SetTyping(c.Context(), c.Params("id"), userID(c), body.Typing)
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *handlers) markRead(c *fiber.Ctx) error {
	if err := h.d.Tracker.MarkThreadRead(c.Context(), c.Params("id"), userID(c)); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
