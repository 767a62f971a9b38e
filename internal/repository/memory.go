package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agriclip/chat-service/internal/models"
)

// MemoryStore is a MessageStore backed by process memory. It serves
// development mode and tests; production deployments use MongoStore.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*models.Message
	order    []string
	seq      int64
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Append(ctx context.Context, m *models.Message) (*models.Message, error) {
	if m.Status == "" {
		m.Status = models.StatusSent
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.ID = uuid.NewString()
	s.seq++
	// Arrival order stays stable even when clock readings collide.
	cp.CreatedAt = s.now().Add(time.Duration(s.seq) * time.Nanosecond)
	s.messages[cp.ID] = &cp
	s.order = append(s.order, cp.ID)
	out := cp
	return &out, nil
}

func (s *MemoryStore) History(ctx context.Context, userID, sessionID string, limit int64) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Message, 0)
	for _, id := range s.order {
		m := s.messages[id]
		if m.UserID != userID || m.SessionID != sessionID || m.IsDeleted {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Sessions(ctx context.Context, userID string, limit int64) ([]*SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := make(map[string]*SessionSummary)
	for _, id := range s.order {
		m := s.messages[id]
		if m.UserID != userID || m.IsDeleted {
			continue
		}
		sum, ok := byID[m.SessionID]
		if !ok {
			sum = &SessionSummary{SessionID: m.SessionID}
			byID[m.SessionID] = sum
		}
		sum.MessageCount++
		if m.CreatedAt.After(sum.LastMessageAt) {
			sum.LastMessageAt = m.CreatedAt
			sum.LastText = m.Content.Text
		}
	}
	out := make([]*SessionSummary, 0, len(byID))
	for _, sum := range byID {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Edit(ctx context.Context, messageID, userID, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.IsDeleted || m.UserID != userID || m.MessageType != models.MessageTypeUser {
		return nil, ErrNotFound
	}
	if s.now().Sub(m.CreatedAt) > EditWindow {
		return nil, ErrEditExpired
	}
	if text == "" || len([]rune(text)) > models.MaxTextLen {
		v := &models.ValidationError{}
		v.Add("content.text", "message text must be between 1 and 5000 characters")
		return nil, v
	}
	m.Content.Text = text
	m.IsEdited = true
	now := s.now()
	m.EditedAt = &now
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, messageID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.UserID != userID {
		return ErrNotFound
	}
	m.IsDeleted = true
	return nil
}

func (s *MemoryStore) SoftDeleteSession(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.SessionID == sessionID && m.UserID == userID {
			m.IsDeleted = true
		}
	}
	return nil
}

func (s *MemoryStore) AddReaction(ctx context.Context, messageID, userID string, r models.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.IsDeleted {
		return ErrNotFound
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string]models.Reaction)
	}
	m.Reactions[userID] = r
	return nil
}

// Get returns a message by id regardless of owner. Used by tests and the
// weak previousMessageId lookup.
func (s *MemoryStore) Get(ctx context.Context, messageID string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[messageID]
	if !ok || m.IsDeleted {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// MemoryUploads is an in-memory UploadRegistry for development and tests.
type MemoryUploads struct {
	mu      sync.RWMutex
	uploads map[string]*models.Upload
}

func NewMemoryUploads() *MemoryUploads {
	return &MemoryUploads{uploads: make(map[string]*models.Upload)}
}

func (u *MemoryUploads) Add(up *models.Upload) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.uploads[up.ID] = up
}

func (u *MemoryUploads) Resolve(ctx context.Context, uploadID, ownerID string) (*models.Upload, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	up, ok := u.uploads[uploadID]
	if !ok || up.UserID != ownerID {
		return nil, ErrNotFound
	}
	cp := *up
	return &cp, nil
}
