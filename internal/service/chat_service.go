package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/classifier"
	"github.com/agriclip/chat-service/internal/events"
	"github.com/agriclip/chat-service/internal/metrics"
	"github.com/agriclip/chat-service/internal/models"
	"github.com/agriclip/chat-service/internal/repository"
)

// ChatService orchestrates the session/message lifecycle: it mints
// sessions, appends messages, hands image attachments to the
// classification tracker and reconciles terminal job states back into
// the conversation.
type ChatService struct {
	store     repository.MessageStore
	uploads   repository.UploadRegistry
	tracker   *classifier.Tracker
	responder Responder
	pub       *events.Publisher
	log       *zap.SugaredLogger

	replyDelay time.Duration
	// schedule runs fn after d in the background; swapped in tests for a
	// synchronous variant.
	schedule func(d time.Duration, fn func())
}

func NewChatService(
	store repository.MessageStore,
	uploads repository.UploadRegistry,
	tracker *classifier.Tracker,
	responder Responder,
	pub *events.Publisher,
	log *zap.SugaredLogger,
) *ChatService {
	return &ChatService{
		store:      store,
		uploads:    uploads,
		tracker:    tracker,
		responder:  responder,
		pub:        pub,
		log:        log,
		replyDelay: 2 * time.Second,
		schedule:   func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// SetReplyDelay overrides how long the assistant waits before answering
// a text-only message.
func (s *ChatService) SetReplyDelay(d time.Duration) {
	if d > 0 {
		s.replyDelay = d
	}
}

type AttachmentInput struct {
	UploadID string `json:"uploadId"`
}

type SendMessageInput struct {
	SessionID         string
	MessageType       models.MessageType
	Text              string
	Attachments       []AttachmentInput
	Topic             models.ConversationTopic
	PreviousMessageID string
}

// SendMessage appends a message to a session, minting the session token
// when absent. Background work (classification, assistant reply) is
// scheduled fire-and-forget; the call never waits on it. Returns the
// stored message and the session id in effect.
func (s *ChatService) SendMessage(ctx context.Context, userID string, in SendMessageInput) (*models.Message, string, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageTypeUser
	}

	// Unresolvable references are dropped, not fatal: the conversation
	// stays available at the cost of partial attachment loss.
	attachments := make([]models.Attachment, 0, len(in.Attachments))
	for _, ref := range in.Attachments {
		up, err := s.uploads.Resolve(ctx, ref.UploadID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.log.Infow("attachment dropped", "uploadId", ref.UploadID, "userId", userID)
			} else {
				s.log.Warnw("attachment resolve failed", "uploadId", ref.UploadID, "error", err)
			}
			continue
		}
		attachments = append(attachments, up.Attachment())
	}

	msg := &models.Message{
		UserID:      userID,
		SessionID:   sessionID,
		MessageType: msgType,
		Content: models.MessageContent{
			Text:        in.Text,
			Attachments: attachments,
		},
		Context: models.MessageContext{
			ConversationTopic: in.Topic,
			PreviousMessageID: in.PreviousMessageID,
		},
		Status: models.StatusSent,
	}

	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		return nil, "", err
	}
	metrics.MessagesCreated.WithLabelValues(string(msgType)).Inc()
	go s.pub.MessageCreated(context.Background(), stored)

	if msgType == models.MessageTypeUser {
		if img := firstImage(stored.Content.Attachments); img != nil {
			s.tracker.Submit(
				classifier.ClassifyRequest{UploadID: img.UploadID, AdditionalInfo: in.Text},
				classifier.Correlation{MessageID: stored.ID, SessionID: sessionID, UserID: userID},
			)
		} else if s.responder != nil {
			s.scheduleReply(stored)
		}
	}

	return stored, sessionID, nil
}

// ReconcileClassification folds a terminal job state into the session as
// a synthesized message. Non-terminal jobs are left alone. The append
// happens exactly once per job regardless of how many pollers observe
// the terminal state.
func (s *ChatService) ReconcileClassification(ctx context.Context, uploadID, sessionID, userID string) (*models.Message, error) {
	snap, ok := s.tracker.Poll(uploadID)
	if !ok {
		return nil, classifier.ErrUnknownJob
	}
	if !snap.Status.Terminal() {
		return nil, nil
	}
	if sessionID == "" {
		sessionID = snap.Correlation.SessionID
	}
	if userID == "" {
		userID = snap.Correlation.UserID
	}

	if !s.tracker.MarkMaterialized(uploadID) {
		metrics.DuplicateMaterializations.Inc()
		return nil, nil
	}

	var msg *models.Message
	if snap.Status == models.JobCompleted {
		msg = resultMessage(userID, sessionID, snap)
	} else {
		msg = failureMessage(userID, sessionID, snap)
	}

	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		// Release the gate so a later poll can retry the append.
		s.tracker.Unmark(uploadID)
		return nil, err
	}
	metrics.MessagesCreated.WithLabelValues(string(stored.MessageType)).Inc()
	go s.pub.MessageCreated(context.Background(), stored)
	go s.pub.ClassificationFinished(context.Background(), uploadID, snap.Status, snap.Result)
	return stored, nil
}

// JobStatus exposes the tracker's last known state for a submitted
// upload without blocking.
func (s *ChatService) JobStatus(uploadID string) (classifier.Snapshot, bool) {
	return s.tracker.Poll(uploadID)
}

// SubmitClassification is the direct submit path (POST /model/classify);
// idempotent per upload id.
func (s *ChatService) SubmitClassification(req classifier.ClassifyRequest) classifier.Snapshot {
	return s.tracker.Submit(req, classifier.Correlation{})
}

// History and Sessions pass through to the store; the service is the
// single entry point handlers talk to.
func (s *ChatService) History(ctx context.Context, userID, sessionID string, limit int64) ([]*models.Message, error) {
	return s.store.History(ctx, userID, sessionID, limit)
}

func (s *ChatService) Sessions(ctx context.Context, userID string, limit int64) ([]*repository.SessionSummary, error) {
	return s.store.Sessions(ctx, userID, limit)
}

func (s *ChatService) Edit(ctx context.Context, messageID, userID, text string) (*models.Message, error) {
	return s.store.Edit(ctx, messageID, userID, text)
}

func (s *ChatService) Delete(ctx context.Context, messageID, userID string) error {
	return s.store.SoftDelete(ctx, messageID, userID)
}

func (s *ChatService) DeleteSession(ctx context.Context, sessionID, userID string) error {
	return s.store.SoftDeleteSession(ctx, sessionID, userID)
}

func (s *ChatService) React(ctx context.Context, messageID, userID string, r models.Reaction) error {
	return s.store.AddReaction(ctx, messageID, userID, r)
}

func (s *ChatService) scheduleReply(userMsg *models.Message) {
	s.schedule(s.replyDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		text, ai := s.responder.Reply(userMsg.Context.ConversationTopic, userMsg.Content.Text)
		topic := userMsg.Context.ConversationTopic
		if topic == "" {
			topic = models.TopicGeneral
		}
		reply := &models.Message{
			UserID:      userMsg.UserID,
			SessionID:   userMsg.SessionID,
			MessageType: models.MessageTypeAI,
			Content:     models.MessageContent{Text: text},
			Context: models.MessageContext{
				ConversationTopic: topic,
				PreviousMessageID: userMsg.ID,
			},
			AIResponse: ai,
			Status:     models.StatusCompleted,
		}
		stored, err := s.store.Append(ctx, reply)
		if err != nil {
			s.log.Warnw("assistant reply append failed", "sessionId", userMsg.SessionID, "error", err)
			return
		}
		metrics.MessagesCreated.WithLabelValues(string(models.MessageTypeAI)).Inc()
		s.pub.MessageCreated(ctx, stored)
	})
}

func firstImage(atts []models.Attachment) *models.Attachment {
	for i := range atts {
		if atts[i].IsImage() {
			return &atts[i]
		}
	}
	return nil
}

func resultMessage(userID, sessionID string, snap classifier.Snapshot) *models.Message {
	res := snap.Result
	model := res.Model
	if model == "" {
		model = "agriclip-v1"
	}
	return &models.Message{
		UserID:      userID,
		SessionID:   sessionID,
		MessageType: models.MessageTypeAI,
		Content:     models.MessageContent{Text: formatResult(res)},
		Context: models.MessageContext{
			ConversationTopic: models.TopicDiseaseDetection,
			PreviousMessageID: snap.Correlation.MessageID,
		},
		AIResponse: &models.AIResponse{
			Model:          model,
			Confidence:     res.Confidence,
			ProcessingTime: int(res.ProcessingTime * 1000),
		},
		Status: models.StatusCompleted,
	}
}

func failureMessage(userID, sessionID string, snap classifier.Snapshot) *models.Message {
	text := "I couldn't analyze your image. Please try uploading it again."
	if snap.Error != "" {
		text = fmt.Sprintf("I couldn't analyze your image (%s). Please try uploading it again.", snap.Error)
	}
	return &models.Message{
		UserID:      userID,
		SessionID:   sessionID,
		MessageType: models.MessageTypeSystem,
		Content:     models.MessageContent{Text: text},
		Context: models.MessageContext{
			ConversationTopic: models.TopicDiseaseDetection,
			PreviousMessageID: snap.Correlation.MessageID,
		},
		Status: models.StatusCompleted,
	}
}

func formatResult(res *models.ClassificationResult) string {
	var b strings.Builder
	if res.DiseaseDetected {
		fmt.Fprintf(&b, "I've analyzed your crop image. Diagnosis: %s (confidence %d%%).", res.DiseaseName, res.Confidence)
		if res.Severity != "" {
			fmt.Fprintf(&b, " Severity: %s.", res.Severity)
		}
		if res.AffectedArea > 0 {
			fmt.Fprintf(&b, " Affected area: about %d%%.", res.AffectedArea)
		}
	} else {
		fmt.Fprintf(&b, "Good news! Your crop looks healthy (confidence %d%%).", res.Confidence)
	}
	if len(res.Recommendations) > 0 {
		b.WriteString("\n\nRecommendations:")
		for _, r := range res.Recommendations {
			b.WriteString("\n- ")
			b.WriteString(r)
		}
	}
	return b.String()
}
