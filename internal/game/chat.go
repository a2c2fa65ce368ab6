package game

import (
	"strings"
	"sync"

	"lumina/internal/protocol"
)

// ChatPageSize is the fetch window for both the initial load and older pages.
const ChatPageSize = 20

// Chat is the append-only message log for one campaign. Sends and deletes go
// through the server and only land in the visible list when the change feed
// echoes them back, so all clients converge on the same log.
type Chat struct {
	mu       sync.Mutex
	messages []protocol.ChatMessage // oldest first, display order
	hasMore  bool
	loading  bool

	send    func(typ string, v interface{}) error
	lastErr error
}

func NewChat(send func(string, interface{}) error) *Chat {
	return &Chat{send: send}
}

// Load requests the newest page.
func (c *Chat) Load() error {
	c.mu.Lock()
	c.loading = true
	c.hasMore = false
	c.mu.Unlock()
	err := c.send("LoadChat", protocol.LoadChat{Limit: ChatPageSize})
	c.setErr(err)
	return err
}

// LoadMore requests the page older than the oldest loaded message. No-op
// until an initial load has landed.
func (c *Chat) LoadMore() error {
	c.mu.Lock()
	if len(c.messages) == 0 || c.loading {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	before := c.messages[0].CreatedAt
	c.mu.Unlock()

	err := c.send("LoadChat", protocol.LoadChat{Before: before, Limit: ChatPageSize})
	c.setErr(err)
	return err
}

// ApplyPage folds a fetched page in. Pages arrive newest-first from the
// store and are reversed for display order; older pages are prepended.
func (c *Chat) ApplyPage(p protocol.ChatPage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading = false

	page := make([]protocol.ChatMessage, len(p.Messages))
	for i, m := range p.Messages {
		page[len(p.Messages)-1-i] = m
	}

	if len(c.messages) == 0 {
		c.messages = page
		c.hasMore = p.HasMore
		return
	}
	if len(page) == 0 {
		c.hasMore = false
		return
	}
	// Older page: everything fetched predates the current oldest entry.
	if page[len(page)-1].CreatedAt <= c.messages[0].CreatedAt {
		c.messages = append(page, c.messages...)
	} else {
		c.messages = page
	}
	c.hasMore = p.HasMore
}

// Send inserts the message server-side. The sender's own list is not
// appended here; visibility waits for the INSERT echo like everyone else's.
func (c *Chat) Send(content, recipientID string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	err := c.send("SendChat", protocol.SendChat{Content: content, RecipientID: recipientID})
	c.setErr(err)
	return err
}

func (c *Chat) Delete(id string) error {
	err := c.send("DeleteChat", protocol.DeleteChat{ID: id})
	c.setErr(err)
	return err
}

// ApplyChange folds a realtime insert or delete into the visible list.
func (c *Chat) ApplyChange(ch protocol.ChatChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch ch.Event {
	case protocol.EventInsert:
		if ch.New != nil {
			c.messages = append(c.messages, *ch.New)
		}
	case protocol.EventDelete:
		if ch.Old == nil {
			return
		}
		for i, m := range c.messages {
			if m.ID == ch.Old.ID {
				c.messages = append(c.messages[:i], c.messages[i+1:]...)
				break
			}
		}
	}
}

// Messages returns the display-ordered log (oldest first).
func (c *Chat) Messages() []protocol.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ChatMessage(nil), c.messages...)
}

func (c *Chat) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *Chat) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Chat) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Chat) setErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	c.lastErr = err
	c.loading = false
	c.mu.Unlock()
}
