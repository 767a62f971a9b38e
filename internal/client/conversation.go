package client

import (
	"sort"
	"sync"

	"github.com/agriclip/chat-service/internal/models"
)

// Conversation is locally held session state. Merge is idempotent by
// message id: an id that was merged before is never re-inserted, and
// the view stays ordered by ascending creation time.
type Conversation struct {
	mu   sync.RWMutex
	byID map[string]struct{}
	msgs []*models.Message
}

func NewConversation() *Conversation {
	return &Conversation{byID: make(map[string]struct{})}
}

// Merge folds incoming messages into local state and reports how many
// were new.
func (c *Conversation) Merge(incoming ...*models.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	added := 0
	for _, m := range incoming {
		if _, seen := c.byID[m.ID]; seen {
			continue
		}
		c.byID[m.ID] = struct{}{}
		c.msgs = append(c.msgs, m)
		added++
	}
	if added > 0 {
		sort.SliceStable(c.msgs, func(i, j int) bool {
			return c.msgs[i].CreatedAt.Before(c.msgs[j].CreatedAt)
		})
	}
	return added
}

func (c *Conversation) Messages() []*models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.msgs)
}
