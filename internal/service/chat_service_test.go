package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agriclip/chat-service/internal/classifier"
	"github.com/agriclip/chat-service/internal/models"
	"github.com/agriclip/chat-service/internal/repository"
)

type stubBackend struct {
	result *models.ClassificationResult
	err    error
}

func (b *stubBackend) Classify(ctx context.Context, req classifier.ClassifyRequest) (*models.ClassificationResult, error) {
	return b.result, b.err
}

type fixture struct {
	svc     *ChatService
	store   *repository.MemoryStore
	uploads *repository.MemoryUploads
	tracker *classifier.Tracker
}

func newFixture(t *testing.T, backend classifier.Backend) *fixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	store := repository.NewMemoryStore()
	uploads := repository.NewMemoryUploads()
	tracker := classifier.NewTracker(backend, time.Hour, log)
	svc := NewChatService(store, uploads, tracker, NewTemplatedResponder(), nil, log)
	// Assistant replies run inline so tests observe them without sleeping.
	svc.schedule = func(d time.Duration, fn func()) { fn() }
	return &fixture{svc: svc, store: store, uploads: uploads, tracker: tracker}
}

func (f *fixture) addImageUpload(id, userID string) {
	f.uploads.Add(&models.Upload{ID: id, UserID: userID, Filename: id + ".jpg", MimeType: "image/jpeg"})
}

func awaitTerminal(t *testing.T, f *fixture, uploadID string) classifier.Snapshot {
	t.Helper()
	var snap classifier.Snapshot
	require.Eventually(t, func() bool {
		s, ok := f.tracker.Poll(uploadID)
		snap = s
		return ok && s.Status.Terminal()
	}, time.Second, 5*time.Millisecond)
	return snap
}

func TestSendMessageMintsSession(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	f.svc.responder = nil

	stored, sessionID, err := f.svc.SendMessage(context.Background(), "u1", SendMessageInput{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, sessionID, stored.SessionID)

	_, err = uuid.Parse(sessionID)
	assert.NoError(t, err)
}

func TestSendMessageReusesSession(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	f.svc.responder = nil
	ctx := context.Background()

	_, sessionID, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{Text: "first"})
	require.NoError(t, err)
	_, second, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{SessionID: sessionID, Text: "second"})
	require.NoError(t, err)
	assert.Equal(t, sessionID, second)

	history, err := f.svc.History(ctx, "u1", sessionID, 50)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSendMessageDropsUnresolvableAttachments(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	f.svc.responder = nil

	stored, _, err := f.svc.SendMessage(context.Background(), "u1", SendMessageInput{
		Text:        "what is this?",
		Attachments: []AttachmentInput{{UploadID: "ghost"}},
	})
	require.NoError(t, err)
	assert.Empty(t, stored.Content.Attachments)

	// Someone else's upload is just as unresolvable.
	f.addImageUpload("up1", "u2")
	stored, _, err = f.svc.SendMessage(context.Background(), "u1", SendMessageInput{
		Text:        "and this?",
		Attachments: []AttachmentInput{{UploadID: "up1"}},
	})
	require.NoError(t, err)
	assert.Empty(t, stored.Content.Attachments)
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	_, _, err := f.svc.SendMessage(context.Background(), "u1", SendMessageInput{})
	var v *models.ValidationError
	require.ErrorAs(t, err, &v)
}

func TestImageAttachmentTriggersClassification(t *testing.T) {
	f := newFixture(t, &stubBackend{result: &models.ClassificationResult{
		DiseaseDetected: true,
		DiseaseName:     "Northern Corn Leaf Blight",
		Confidence:      87,
		Severity:        "medium",
		AffectedArea:    25,
		Recommendations: []string{"Apply fungicide containing azoxystrobin"},
	}})
	ctx := context.Background()
	f.addImageUpload("up1", "u1")

	userMsg, sessionID, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{
		Text:        "my corn leaves look sick",
		Attachments: []AttachmentInput{{UploadID: "up1"}},
	})
	require.NoError(t, err)
	require.Len(t, userMsg.Content.Attachments, 1)

	awaitTerminal(t, f, "up1")

	result, err := f.svc.ReconcileClassification(ctx, "up1", sessionID, "u1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, models.MessageTypeAI, result.MessageType)
	assert.Equal(t, models.TopicDiseaseDetection, result.Context.ConversationTopic)
	assert.Equal(t, userMsg.ID, result.Context.PreviousMessageID)
	require.NotNil(t, result.AIResponse)
	assert.Equal(t, 87, result.AIResponse.Confidence)
	assert.Contains(t, result.Content.Text, "Northern Corn Leaf Blight")
	assert.Contains(t, result.Content.Text, "Apply fungicide containing azoxystrobin")

	// A second reconcile observes the gate and appends nothing.
	again, err := f.svc.ReconcileClassification(ctx, "up1", sessionID, "u1")
	require.NoError(t, err)
	assert.Nil(t, again)

	history, err := f.svc.History(ctx, "u1", sessionID, 50)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestReconcileFailedJob(t *testing.T) {
	f := newFixture(t, &stubBackend{err: errors.New("model offline")})
	ctx := context.Background()
	f.addImageUpload("up1", "u1")

	_, sessionID, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{
		Text:        "diagnose please",
		Attachments: []AttachmentInput{{UploadID: "up1"}},
	})
	require.NoError(t, err)

	awaitTerminal(t, f, "up1")

	msg, err := f.svc.ReconcileClassification(ctx, "up1", sessionID, "u1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, models.MessageTypeSystem, msg.MessageType)
	assert.Contains(t, msg.Content.Text, "model offline")
}

func TestReconcileNonTerminalIsNoop(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, blockUntil(release))
	ctx := context.Background()
	f.addImageUpload("up1", "u1")

	_, sessionID, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{
		Text:        "diagnose please",
		Attachments: []AttachmentInput{{UploadID: "up1"}},
	})
	require.NoError(t, err)

	msg, err := f.svc.ReconcileClassification(ctx, "up1", sessionID, "u1")
	require.NoError(t, err)
	assert.Nil(t, msg)
	close(release)
}

func TestReconcileUnknownJob(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	_, err := f.svc.ReconcileClassification(context.Background(), "nope", "s1", "u1")
	assert.ErrorIs(t, err, classifier.ErrUnknownJob)
}

func TestReconcileFallsBackToCorrelation(t *testing.T) {
	f := newFixture(t, &stubBackend{result: &models.ClassificationResult{
		DiseaseDetected: false,
		DiseaseName:     "Healthy",
		Confidence:      95,
	}})
	ctx := context.Background()
	f.addImageUpload("up1", "u1")

	_, sessionID, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{
		Text:        "looks fine to me",
		Attachments: []AttachmentInput{{UploadID: "up1"}},
	})
	require.NoError(t, err)

	awaitTerminal(t, f, "up1")

	msg, err := f.svc.ReconcileClassification(ctx, "up1", "", "")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, sessionID, msg.SessionID)
	assert.Equal(t, "u1", msg.UserID)
	assert.Contains(t, msg.Content.Text, "healthy")
}

func TestTextOnlyMessageGetsAssistantReply(t *testing.T) {
	f := newFixture(t, &stubBackend{})
	ctx := context.Background()

	_, sessionID, err := f.svc.SendMessage(ctx, "u1", SendMessageInput{
		Text:  "how often should I water tomatoes?",
		Topic: models.TopicFarmingAdvice,
	})
	require.NoError(t, err)

	history, err := f.svc.History(ctx, "u1", sessionID, 50)
	require.NoError(t, err)
	require.Len(t, history, 2)

	reply := history[1]
	assert.Equal(t, models.MessageTypeAI, reply.MessageType)
	assert.Equal(t, history[0].ID, reply.Context.PreviousMessageID)
	assert.NotEmpty(t, reply.Content.Text)
	require.NotNil(t, reply.AIResponse)
	assert.GreaterOrEqual(t, reply.AIResponse.Confidence, 70)
}

func TestFormatResultListsRecommendations(t *testing.T) {
	text := formatResult(&models.ClassificationResult{
		DiseaseDetected: true,
		DiseaseName:     "Rust Disease",
		Confidence:      78,
		Severity:        "low",
		AffectedArea:    15,
		Recommendations: []string{"Apply preventive fungicide spray", "Monitor weather conditions"},
	})
	assert.Contains(t, text, "Rust Disease")
	assert.Contains(t, text, "78%")
	assert.Equal(t, 2, strings.Count(text, "\n- "))
}

type blockingStub struct{ release chan struct{} }

func blockUntil(release chan struct{}) *blockingStub {
	return &blockingStub{release: release}
}

func (b *blockingStub) Classify(ctx context.Context, req classifier.ClassifyRequest) (*models.ClassificationResult, error) {
	<-b.release
	return &models.ClassificationResult{DiseaseName: "Healthy", Confidence: 95}, nil
}
