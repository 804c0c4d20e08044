package chat

import (
	"fmt"
	"time"

	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/pkg/markdown"
)

const clockLayout = "15:04:05"

type stepTemplate struct {
	title       string
	description string
}

var modeSteps = map[models.ChatMode][]stepTemplate{
	models.ModeResearch: {
		{"Analysis", "Analyzing research query"},
		{"Research", "Conducting deep research"},
		{"Synthesis", "Synthesizing comprehensive response"},
	},
	models.ModeCode: {
		{"Requirements Analysis", "Analyzing code requirements"},
		{"Code Generation", "Generating optimized solution"},
		{"Validation", "Validating against best practices"},
	},
	models.ModeTroubleshoot: {
		{"Code Analysis", "Analyzing code structure and logic"},
		{"Error Investigation", "Investigating error patterns and causes"},
		{"Solution Development", "Developing comprehensive solution"},
	},
}

// Steps returns the progress steps shown for a mode; standard mode has none
func Steps(mode models.ChatMode, now time.Time) []models.Step {
	templates := modeSteps[mode]
	if len(templates) == 0 {
		return nil
	}

	steps := make([]models.Step, len(templates))
	for i, t := range templates {
		steps[i] = models.Step{
			Step:        i + 1,
			Title:       t.title,
			Description: t.description,
			Timestamp:   now.Format(clockLayout),
			Status:      "completed",
		}
	}
	return steps
}

// DiagnosticLogs returns the troubleshoot log list
func DiagnosticLogs(req *models.ChatRequest, now time.Time) []models.LogEntry {
	ts := now.Format(clockLayout)
	logs := []models.LogEntry{{Level: "info", Message: "Starting diagnostic analysis", Timestamp: ts}}
	if req.Error != "" {
		logs = append(logs, models.LogEntry{Level: "error", Message: req.Error, Timestamp: ts})
	}
	return append(logs, models.LogEntry{Level: "info", Message: "Analysis complete", Timestamp: ts})
}

// RenderHTML converts provider markdown to HTML wrapped in a mode container
func RenderHTML(text string, mode models.ChatMode) string {
	return fmt.Sprintf(`<div class="%s-response">%s</div>`, mode, markdown.ToHTML(text))
}
