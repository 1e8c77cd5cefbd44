package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/auth"
	"github.com/fathima-sithara/chat-sync/internal/config"
	"github.com/fathima-sithara/chat-sync/internal/identity"
	"github.com/fathima-sithara/chat-sync/internal/metrics"
	"github.com/fathima-sithara/chat-sync/internal/service"
)

// Deps is everything the UI-facing surface needs from the engine.
type Deps struct {
	Cfg       *config.Config
	Log       *zap.SugaredLogger
	Validator *auth.Validator
	Directory *service.Directory
	Thread    *service.Thread
	Presence  *service.Presence
	Tracker   *service.Tracker
	Agg       *service.Aggregator
	Resolver  identity.Resolver
}

// NewServer builds the Fiber app. Every command endpoint is
// fire-and-forget-with-error-response; the live data flows over /ws.
func NewServer(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	h := newHandlers(d)

	api := app.Group("/v1", bearerAuth(d.Validator))
	api.Get("/profiles", h.searchProfiles)
	api.Post("/conversations", h.findOrCreate)
	api.Get("/conversations/:id/messages", h.listMessages)
	api.Post("/conversations/:id/messages", h.sendMessage)
	api.Post("/conversations/:id/typing", h.setTyping)
	api.Post("/conversations/:id/read", h.markRead)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}, bearerAuth(d.Validator))
	app.Get("/ws", websocket.New(h.handleWS))

	return app
}

func bearerAuth(v *auth.Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		hdr := c.Get("Authorization")
		if hdr == "" {
			// Browsers cannot set headers on websocket dials; allow the
			// token as a query parameter there.
			if tok := c.Query("token"); tok != "" {
				hdr = "Bearer " + tok
			}
		}
		const pref = "Bearer "
		if len(hdr) <= len(pref) || hdr[:len(pref)] != pref {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing or invalid authorization"})
		}
		sub, err := v.Validate(hdr[len(pref):])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals("user_id", sub)
		return c.Next()
	}
}
