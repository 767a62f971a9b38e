package repository

import (
	"context"
	"errors"
	"time"

	"github.com/agriclip/chat-service/internal/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrEditExpired = errors.New("message is too old to edit")
)

// EditWindow is how long after creation a user message stays editable.
const EditWindow = 24 * time.Hour

// SessionSummary is one entry of a user's session listing, aggregated
// from that session's non-deleted messages.
type SessionSummary struct {
	SessionID     string    `bson:"_id" json:"sessionId"`
	LastMessageAt time.Time `bson:"lastMessageAt" json:"lastMessageAt"`
	LastText      string    `bson:"lastText,omitempty" json:"lastText,omitempty"`
	MessageCount  int64     `bson:"messageCount" json:"messageCount"`
}

// MessageStore persists chat messages. Messages are never physically
// deleted; soft-deleted ones are excluded from every read path.
type MessageStore interface {
	// Append validates the message, assigns id and creation timestamp and
	// stores it. Returns *models.ValidationError on invariant violation.
	Append(ctx context.Context, m *models.Message) (*models.Message, error)

	// History returns the caller's messages for a session in ascending
	// creation-time order, excluding soft-deleted, at most limit entries.
	History(ctx context.Context, userID, sessionID string, limit int64) ([]*models.Message, error)

	// Sessions returns the caller's distinct sessions, most recently
	// active first.
	Sessions(ctx context.Context, userID string, limit int64) ([]*SessionSummary, error)

	// Edit overwrites the text of a user-typed message owned by userID.
	// Returns ErrNotFound when the message does not exist, is not owned
	// by the caller or is not a user message (existence is not
	// disclosed), and ErrEditExpired past the edit window.
	Edit(ctx context.Context, messageID, userID, text string) (*models.Message, error)

	// SoftDelete marks the caller's message deleted. Idempotent.
	SoftDelete(ctx context.Context, messageID, userID string) error

	// SoftDeleteSession marks every message the caller owns in the
	// session deleted. Idempotent; an empty session is not an error.
	SoftDeleteSession(ctx context.Context, sessionID, userID string) error

	// AddReaction upserts the caller's reaction on a message. One active
	// reaction per user per message, last write wins.
	AddReaction(ctx context.Context, messageID, userID string, r models.Reaction) error
}

// UploadRegistry resolves an upload reference to its metadata when the
// upload exists and belongs to ownerID; otherwise ErrNotFound. Read-only
// collaborator, never mutated here.
type UploadRegistry interface {
	Resolve(ctx context.Context, uploadID, ownerID string) (*models.Upload, error)
}
