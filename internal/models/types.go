package models

import (
	"fmt"
	"strings"
	"time"
)

// ChatMode selects how a request is prompted and decorated
type ChatMode string

const (
	ModeResearch     ChatMode = "research"
	ModeCode         ChatMode = "code"
	ModeTroubleshoot ChatMode = "troubleshoot"
	ModeStandard     ChatMode = "standard"
)

// Modes lists every chat mode in declaration order
var Modes = []ChatMode{ModeResearch, ModeCode, ModeTroubleshoot, ModeStandard}

// ParseMode converts a wire value into a ChatMode
func ParseMode(s string) (ChatMode, error) {
	mode := ChatMode(strings.ToLower(strings.TrimSpace(s)))
	for _, m := range Modes {
		if m == mode {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown chat mode: %q", s)
}

// DisplayName returns the human readable mode name
func (m ChatMode) DisplayName() string {
	switch m {
	case ModeResearch:
		return "Research"
	case ModeCode:
		return "Code"
	case ModeTroubleshoot:
		return "Troubleshoot"
	default:
		return "Standard"
	}
}

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatRequest is an incoming chat message. It is not mutated after decoding.
type ChatRequest struct {
	Content   string   `json:"content" validate:"required,max=32000"`
	Mode      ChatMode `json:"mode" validate:"required,oneof=research code troubleshoot standard"`
	SessionID string   `json:"session_id,omitempty" validate:"omitempty,max=128"`
	Code      string   `json:"code,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// ConversationTurn is one message of a session's history
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ModeSuggestion proposes switching the client to a better suited mode
type ModeSuggestion struct {
	SuggestedMode ChatMode `json:"suggested_mode"`
	Confidence    float64  `json:"confidence"`
	Reason        string   `json:"reason"`
	Message       string   `json:"message"`
}

// Step is a progress marker shown by the UI
type Step struct {
	Step        int    `json:"step"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
	Status      string `json:"status"`
}

// CodeBlock is a fenced block lifted out of a response
type CodeBlock struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

// LogEntry is a diagnostic line attached to troubleshoot responses
type LogEntry struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ChatResponse is the non-streaming reply
type ChatResponse struct {
	ID             string          `json:"id"`
	Type           Role            `json:"type"`
	Content        string          `json:"content"`
	Timestamp      time.Time       `json:"timestamp"`
	Mode           ChatMode        `json:"mode"`
	Steps          []Step          `json:"steps,omitempty"`
	Code           *CodeBlock      `json:"code,omitempty"`
	Logs           []LogEntry      `json:"logs,omitempty"`
	ProcessingTime float64         `json:"processing_time"`
	ModeSuggestion *ModeSuggestion `json:"mode_suggestion,omitempty"`
	Cached         bool            `json:"cached"`
}
