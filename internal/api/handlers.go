package api

import (
	"errors"
	"regexp"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/classifier"
	"github.com/agriclip/chat-service/internal/models"
	"github.com/agriclip/chat-service/internal/repository"
	"github.com/agriclip/chat-service/internal/service"
)

// sessionRe matches UUID v1-5 session tokens.
var sessionRe = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

type Handlers struct {
	svc     *service.ChatService
	uploads repository.UploadRegistry
	log     *zap.SugaredLogger
}

func NewHandlers(svc *service.ChatService, uploads repository.UploadRegistry, log *zap.SugaredLogger) *Handlers {
	return &Handlers{svc: svc, uploads: uploads, log: log}
}

func userID(c *fiber.Ctx) string {
	u, _ := c.Locals("user_id").(string)
	return u
}

func ok(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{"success": true, "message": message, "data": data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

func failValidation(c *fiber.Ctx, fields []models.FieldError) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": "Validation failed",
		"errors":  fields,
	})
}

func (h *Handlers) mapError(c *fiber.Ctx, err error) error {
	var v *models.ValidationError
	switch {
	case errors.As(err, &v):
		return failValidation(c, v.Fields)
	case errors.Is(err, repository.ErrEditExpired):
		return fail(c, fiber.StatusBadRequest, "Message is too old to edit")
	case errors.Is(err, repository.ErrNotFound):
		return fail(c, fiber.StatusNotFound, "Message not found")
	default:
		h.log.Errorw("request failed", "path", c.Path(), "error", err)
		return fail(c, fiber.StatusInternalServerError, "Server error")
	}
}

func pagination(c *fiber.Ctx, defLimit, maxLimit int) (page int, limit int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.Query("limit", strconv.Itoa(defLimit)))
	if limit < 1 {
		limit = defLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func (h *Handlers) sendMessage(c *fiber.Ctx) error {
	var req struct {
		Content struct {
			Text        string                    `json:"text"`
			Attachments []service.AttachmentInput `json:"attachments"`
		} `json:"content"`
		SessionID   string `json:"sessionId"`
		MessageType string `json:"messageType"`
		Context     struct {
			ConversationTopic string `json:"conversationTopic"`
			PreviousMessageID string `json:"previousMessageId"`
		} `json:"context"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	var fields []models.FieldError
	if req.SessionID != "" && !sessionRe.MatchString(req.SessionID) {
		fields = append(fields, models.FieldError{Field: "sessionId", Message: "Invalid session ID format"})
	}
	msgType := models.MessageType(req.MessageType)
	if msgType == "" {
		msgType = models.MessageTypeUser
	}
	if !msgType.Valid() {
		fields = append(fields, models.FieldError{Field: "messageType", Message: "Invalid message type"})
	}
	topic := models.ConversationTopic(req.Context.ConversationTopic)
	if topic != "" && !topic.Valid() {
		fields = append(fields, models.FieldError{Field: "context.conversationTopic", Message: "Invalid conversation topic"})
	}
	if len(fields) > 0 {
		return failValidation(c, fields)
	}

	msg, sessionID, err := h.svc.SendMessage(c.Context(), userID(c), service.SendMessageInput{
		SessionID:         req.SessionID,
		MessageType:       msgType,
		Text:              req.Content.Text,
		Attachments:       req.Content.Attachments,
		Topic:             topic,
		PreviousMessageID: req.Context.PreviousMessageID,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusCreated, "Message sent successfully", fiber.Map{
		"message":   msg,
		"sessionId": sessionID,
	})
}

func (h *Handlers) getHistory(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if !sessionRe.MatchString(sessionID) {
		return fail(c, fiber.StatusBadRequest, "Invalid session ID format")
	}
	page, limit := pagination(c, 50, 100)

	messages, err := h.svc.History(c.Context(), userID(c), sessionID, int64(limit))
	if err != nil {
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusOK, "Chat history retrieved successfully", fiber.Map{
		"messages":  messages,
		"sessionId": sessionID,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": len(messages),
		},
	})
}

func (h *Handlers) getSessions(c *fiber.Ctx) error {
	page, limit := pagination(c, 20, 100)

	sessions, err := h.svc.Sessions(c.Context(), userID(c), int64(limit))
	if err != nil {
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusOK, "Chat sessions retrieved successfully", fiber.Map{
		"sessions": sessions,
		"pagination": fiber.Map{
			"page":  page,
			"limit": limit,
			"total": len(sessions),
		},
	})
}

func (h *Handlers) editMessage(c *fiber.Ctx) error {
	var req struct {
		Content struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.Content.Text == "" {
		return failValidation(c, []models.FieldError{
			{Field: "content.text", Message: "Message text must be between 1 and 5000 characters"},
		})
	}

	msg, err := h.svc.Edit(c.Context(), c.Params("messageId"), userID(c), req.Content.Text)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Message not found or cannot be edited")
		}
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusOK, "Message updated successfully", fiber.Map{"message": msg})
}

func (h *Handlers) deleteMessage(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.Context(), c.Params("messageId"), userID(c)); err != nil {
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusOK, "Message deleted successfully", nil)
}

func (h *Handlers) addReaction(c *fiber.Ctx) error {
	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	reaction := models.Reaction(req.Reaction)
	if !reaction.Valid() {
		return failValidation(c, []models.FieldError{
			{Field: "reaction", Message: "Invalid reaction type"},
		})
	}

	messageID := c.Params("messageId")
	if err := h.svc.React(c.Context(), messageID, userID(c), reaction); err != nil {
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusOK, "Reaction added successfully", fiber.Map{
		"reaction":  reaction,
		"messageId": messageID,
	})
}

func (h *Handlers) deleteSession(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if !sessionRe.MatchString(sessionID) {
		return fail(c, fiber.StatusBadRequest, "Invalid session ID format")
	}
	if err := h.svc.DeleteSession(c.Context(), sessionID, userID(c)); err != nil {
		return h.mapError(c, err)
	}
	return ok(c, fiber.StatusOK, "Chat session deleted successfully", nil)
}

func (h *Handlers) submitClassification(c *fiber.Ctx) error {
	var req struct {
		UploadID       string `json:"uploadId"`
		CropType       string `json:"cropType"`
		Location       string `json:"location"`
		AdditionalInfo string `json:"additionalInfo"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}
	if req.UploadID == "" {
		return failValidation(c, []models.FieldError{
			{Field: "uploadId", Message: "uploadId is required"},
		})
	}
	if _, err := h.uploads.Resolve(c.Context(), req.UploadID, userID(c)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fail(c, fiber.StatusNotFound, "Upload not found")
		}
		return h.mapError(c, err)
	}

	snap := h.svc.SubmitClassification(classifier.ClassifyRequest{
		UploadID:       req.UploadID,
		CropType:       req.CropType,
		Location:       req.Location,
		AdditionalInfo: req.AdditionalInfo,
	})
	return ok(c, fiber.StatusAccepted, "Classification submitted", fiber.Map{
		"uploadId": snap.UploadID,
		"status":   snap.Status,
	})
}

func (h *Handlers) classificationStatus(c *fiber.Ctx) error {
	snap, found := h.svc.JobStatus(c.Params("uploadId"))
	if !found {
		return fail(c, fiber.StatusNotFound, "Classification job not found")
	}
	return ok(c, fiber.StatusOK, "Classification status retrieved", snap)
}
