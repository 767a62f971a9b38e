package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/auth"
	"github.com/agriclip/chat-service/internal/config"
	"github.com/agriclip/chat-service/internal/metrics"
	"github.com/agriclip/chat-service/internal/repository"
	"github.com/agriclip/chat-service/internal/service"
)

// NewServer builds the fiber app: health and metrics stay public, the
// chat and model groups sit behind bearer auth and rate limiting. When
// rdb is nil, rate limiting falls back to the in-process IP limiter.
func NewServer(
	cfg *config.Config,
	svc *service.ChatService,
	uploads repository.UploadRegistry,
	validator *auth.Validator,
	rdb *redis.Client,
	log *zap.SugaredLogger,
) *fiber.App {
	app := fiber.New()
	app.Use(fiberlogger.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	h := NewHandlers(svc, uploads, log)

	perMinute := cfg.App.Rate
	if perMinute <= 0 {
		perMinute = 120
	}
	var limiter fiber.Handler
	if rdb != nil {
		limiter = NewRedisRateLimiter(rdb, "chat:rate", perMinute, time.Minute).Handler()
	} else {
		limiter = NewIPRateLimiter(perMinute, log).Handler()
	}

	chat := app.Group("/chat", authRequired(validator), limiter)
	chat.Post("/message", h.sendMessage)
	chat.Get("/history/:sessionId", h.getHistory)
	chat.Get("/sessions", h.getSessions)
	chat.Put("/message/:messageId", h.editMessage)
	chat.Delete("/message/:messageId", h.deleteMessage)
	chat.Post("/message/:messageId/reaction", h.addReaction)
	chat.Delete("/session/:sessionId", h.deleteSession)

	model := app.Group("/model", authRequired(validator), limiter)
	model.Post("/classify", h.submitClassification)
	model.Get("/classify/:uploadId/status", h.classificationStatus)

	return app
}
