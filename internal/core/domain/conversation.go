package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Thread struct {
	ID            string     `json:"id"`
	ThreadID      string     `json:"thread_id"`
	UserID        string     `json:"user_id"`
	Title         string     `json:"title"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ConversationMessage struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type ThreadWithMessages struct {
	Thread
	Messages []ConversationMessage `json:"messages"`
}
