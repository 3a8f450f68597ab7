package chat

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/drstein77/luxestore/internal/models"
	"github.com/google/uuid"
)

const (
	// MaxMessageLength bounds a single user message, in characters.
	MaxMessageLength = 1000

	// suggestionWindow is the history length below which quick suggestions are offered.
	suggestionWindow = 3

	welcomeText = "Hi! I'm your AI shopping assistant. Ask me anything about our products - like 'What's the cheapest?' or 'Do you have electronics?'"
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

var suggestions = []string{
	"What's the cheapest?",
	"Do you have electronics?",
	"Show me bags",
	"Under $150",
}

// Conversation is the message history of one chat session.
// It is not safe for concurrent use.
type Conversation struct {
	messages []models.ChatMessage
}

// NewConversation starts a history with the assistant's welcome message.
func NewConversation() *Conversation {
	return &Conversation{
		messages: []models.ChatMessage{{
			ID:      "welcome",
			Role:    models.RoleAssistant,
			Content: welcomeText,
		}},
	}
}

// Send records text as a user message, asks r for a reply and records that too.
func (c *Conversation) Send(r *Responder, text string) (models.ChatMessage, Reply, error) {
	if strings.TrimSpace(text) == "" {
		return models.ChatMessage{}, Reply{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return models.ChatMessage{}, Reply{}, ErrMessageTooLong
	}

	c.messages = append(c.messages, models.ChatMessage{
		ID:      uuid.NewString(),
		Role:    models.RoleUser,
		Content: text,
	})

	reply := r.Respond(text)
	answer := models.ChatMessage{
		ID:       uuid.NewString(),
		Role:     models.RoleAssistant,
		Content:  reply.Content,
		Products: reply.Products,
	}
	c.messages = append(c.messages, answer)

	return answer, reply, nil
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []models.ChatMessage {
	return append([]models.ChatMessage(nil), c.messages...)
}

// Suggestions returns quick prompts while the conversation is still fresh.
func (c *Conversation) Suggestions() []string {
	if len(c.messages) >= suggestionWindow {
		return nil
	}
	return append([]string(nil), suggestions...)
}

// History is the serialisable view of the conversation.
func (c *Conversation) History() models.ChatHistory {
	return models.ChatHistory{
		Messages:    c.Messages(),
		Suggestions: c.Suggestions(),
	}
}
