// Package tutor implements the conversation core of studyNERD: the turn
// controller, the directive extractor, and the visualization feed that turn
// raw mentor responses into renderable diagrams and images.
package tutor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// KnowledgeLevel controls the backend's response style. It is passed through
// to the chat backend, never interpreted locally.
type KnowledgeLevel string

const (
	LevelBeginner     KnowledgeLevel = "Beginner"
	LevelIntermediate KnowledgeLevel = "Intermediate"
	LevelAdvanced     KnowledgeLevel = "Advanced"
)

// MentorStatus is the backend's most recent declared judgment of learner
// understanding. The zero value of the Reply field means "not declared".
type MentorStatus string

const (
	MentorSearching MentorStatus = "searching"
	MentorSatisfied MentorStatus = "satisfied"
)

// Message represents a single message in the chat history.
// Messages are immutable once created.
type Message struct {
	ID      string
	Role    Role
	Content string
	Time    time.Time
}

// NewMessage creates a message with a fresh identity and timestamp.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}
}

// History is the append-only ordered sequence of conversation turns.
// It is the sole owner of its messages; subscribers observe appends.
type History struct {
	mu   sync.RWMutex
	msgs []Message
	subs []func(Message)
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds a message to the history and notifies subscribers.
func (h *History) Append(msg Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	subs := make([]func(Message), len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}

// Messages returns a copy of the history in append order.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of messages appended so far.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Subscribe registers fn to be called for every appended message.
// Subscribers are invoked synchronously in append order.
func (h *History) Subscribe(fn func(Message)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, fn)
}
