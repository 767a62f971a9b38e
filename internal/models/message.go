package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

type MessageType string

const (
	MessageTypeUser   MessageType = "user"
	MessageTypeAI     MessageType = "ai"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeUser, MessageTypeAI, MessageTypeSystem:
		return true
	}
	return false
}

type ConversationTopic string

const (
	TopicDiseaseDetection ConversationTopic = "disease_detection"
	TopicFarmingAdvice    ConversationTopic = "farming_advice"
	TopicGeneral          ConversationTopic = "general"
	TopicTroubleshooting  ConversationTopic = "troubleshooting"
)

func (t ConversationTopic) Valid() bool {
	switch t {
	case TopicDiseaseDetection, TopicFarmingAdvice, TopicGeneral, TopicTroubleshooting:
		return true
	}
	return false
}

type Reaction string

const (
	ReactionHelpful    Reaction = "helpful"
	ReactionNotHelpful Reaction = "not_helpful"
	ReactionAccurate   Reaction = "accurate"
	ReactionInaccurate Reaction = "inaccurate"
)

func (r Reaction) Valid() bool {
	switch r {
	case ReactionHelpful, ReactionNotHelpful, ReactionAccurate, ReactionInaccurate:
		return true
	}
	return false
}

const (
	StatusSent      = "sent"
	StatusCompleted = "completed"
)

// MaxTextLen bounds message text; texts are rejected when present but empty.
const MaxTextLen = 5000

// Attachment carries denormalized upload metadata embedded in a message.
// The uploadId is the reference; the rest is display metadata copied at
// send time from the upload registry.
type Attachment struct {
	UploadID     string `bson:"uploadId" json:"uploadId"`
	Filename     string `bson:"filename" json:"filename"`
	OriginalName string `bson:"originalName" json:"originalName"`
	MimeType     string `bson:"mimeType" json:"mimeType"`
	FileSize     int64  `bson:"fileSize" json:"fileSize"`
	FileURL      string `bson:"fileUrl" json:"fileUrl"`
}

func (a Attachment) IsImage() bool {
	return len(a.MimeType) > 6 && a.MimeType[:6] == "image/"
}

type MessageContent struct {
	Text        string       `bson:"text,omitempty" json:"text,omitempty"`
	Attachments []Attachment `bson:"attachments" json:"attachments"`
}

type MessageContext struct {
	ConversationTopic ConversationTopic `bson:"conversationTopic,omitempty" json:"conversationTopic,omitempty"`
	// PreviousMessageID is a weak back-reference: lookup only, never an
	// ownership edge. Deleting the referenced message does not cascade.
	PreviousMessageID string `bson:"previousMessageId,omitempty" json:"previousMessageId,omitempty"`
}

type TokenUsage struct {
	Input  int `bson:"input" json:"input"`
	Output int `bson:"output" json:"output"`
}

// AIResponse is present only on ai-typed messages.
type AIResponse struct {
	Model          string     `bson:"model" json:"model"`
	Confidence     int        `bson:"confidence" json:"confidence"`
	ProcessingTime int        `bson:"processingTime" json:"processingTime"`
	Tokens         TokenUsage `bson:"tokens" json:"tokens"`
}

type Message struct {
	ID          string         `bson:"_id,omitempty" json:"id"`
	UserID      string         `bson:"userId" json:"userId"`
	SessionID   string         `bson:"sessionId" json:"sessionId"`
	MessageType MessageType    `bson:"messageType" json:"messageType"`
	Content     MessageContent `bson:"content" json:"content"`
	Context     MessageContext `bson:"context" json:"context"`
	AIResponse  *AIResponse    `bson:"aiResponse,omitempty" json:"aiResponse,omitempty"`
	Status      string         `bson:"status" json:"status"`
	IsEdited    bool           `bson:"isEdited" json:"isEdited"`
	EditedAt    *time.Time     `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	IsDeleted   bool           `bson:"isDeleted" json:"-"`
	// Reactions maps userId to that user's single active reaction.
	// Last write wins.
	Reactions map[string]Reaction `bson:"reactions,omitempty" json:"reactions,omitempty"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
}

// Validate enforces the message invariants: a valid type, text within
// bounds when present, a known topic when present, and non-empty text or
// at least one attachment.
func (m *Message) Validate() error {
	var v ValidationError
	if m.UserID == "" {
		v.Add("userId", "user id is required")
	}
	if m.SessionID == "" {
		v.Add("sessionId", "session id is required")
	}
	if !m.MessageType.Valid() {
		v.Add("messageType", "invalid message type")
	}
	if m.Content.Text == "" && len(m.Content.Attachments) == 0 {
		v.Add("content", "message must contain either text or attachments")
	}
	if m.Content.Text != "" && utf8.RuneCountInString(m.Content.Text) > MaxTextLen {
		v.Add("content.text", fmt.Sprintf("message text must be between 1 and %d characters", MaxTextLen))
	}
	if m.Context.ConversationTopic != "" && !m.Context.ConversationTopic.Valid() {
		v.Add("context.conversationTopic", "invalid conversation topic")
	}
	if v.Empty() {
		return nil
	}
	return &v
}
