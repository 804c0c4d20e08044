package chat

import (
	"fmt"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/internal/services/ai"
)

const truncationMarker = "... [truncated]"

// BoundHistory keeps the newest MaxHistory turns and shortens turns longer
// than TurnCeiling characters to TruncatedLength plus a marker
func BoundHistory(turns []models.ConversationTurn, cfg config.ContextConfig) []models.ConversationTurn {
	if cfg.MaxHistory > 0 && len(turns) > cfg.MaxHistory {
		turns = turns[len(turns)-cfg.MaxHistory:]
	}

	out := make([]models.ConversationTurn, len(turns))
	for i, turn := range turns {
		out[i] = turn
		if cfg.TurnCeiling <= 0 {
			continue
		}
		runes := []rune(turn.Content)
		if len(runes) > cfg.TurnCeiling {
			keep := min(max(cfg.TruncatedLength, 0), cfg.TurnCeiling)
			out[i].Content = string(runes[:keep]) + truncationMarker
		}
	}
	return out
}

// BuildPrompt assembles the provider prompt from bounded history and the request
func BuildPrompt(req *models.ChatRequest, history []models.ConversationTurn) ai.Prompt {
	messages := make([]ai.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, ai.Message{Role: string(turn.Role), Content: turn.Content})
	}

	content := req.Content
	if req.Code != "" && (req.Mode == models.ModeCode || req.Mode == models.ModeTroubleshoot) {
		content += fmt.Sprintf("\n\nCode Context:\n```\n%s\n```", req.Code)
	}
	if req.Error != "" && req.Mode == models.ModeTroubleshoot {
		content += fmt.Sprintf("\n\nError Details:\n%s", req.Error)
	}
	messages = append(messages, ai.Message{Role: string(models.RoleUser), Content: content})

	return ai.Prompt{
		Mode:        req.Mode,
		System:      ai.SystemPrompt(req.Mode),
		Messages:    messages,
		Temperature: ai.Temperature(req.Mode),
	}
}
