package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation tracks dialogue history, trimming the oldest messages once
// maxMessages is exceeded.
type Conversation struct {
	mu          sync.Mutex
	messages    []Message
	maxMessages int
}

func NewConversation(maxMessages int) *Conversation {
	if maxMessages <= 0 {
		maxMessages = 100
	}
	return &Conversation{maxMessages: maxMessages}
}

func (c *Conversation) Add(role, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(c.messages) > c.maxMessages {
		c.messages = c.messages[len(c.messages)-c.maxMessages:]
	}
}

// Messages returns the last n messages, or all of them when n <= 0.
func (c *Conversation) Messages(n int) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.messages
	if n > 0 && n < len(msgs) {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Format renders the history as role-prefixed lines for inclusion in a
// model prompt.
func (c *Conversation) Format() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	for _, m := range c.messages {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
