package protocol

import (
	"bytes"
	"testing"

	"github.com/chatmux/chatmux/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"start", Start{MessageID: "m1", RequestID: "r1"}, `{"type":"start","message_id":"m1","request_id":"r1"}`},
		{"content", Content{Text: "hi"}, `{"type":"content","text":"hi"}`},
		{"empty code block", CodeBlock{}, `{"type":"code_block","language":"","content":""}`},
		{"code block", CodeBlock{Language: "go", Content: "x := 1\n"}, `{"type":"code_block","language":"go","content":"x := 1\n"}`},
		{"error", Error{Message: "boom"}, `{"type":"error","message":"boom"}`},
		{"stopped", Stopped{Message: "stopped"}, `{"type":"stopped","message":"stopped"}`},
		{"end", End{MessageID: "m1"}, `{"type":"end","message_id":"m1"}`},
		{"done", Done{}, `{"type":"done"}`},
		{
			"mode suggestion",
			ModeSuggestion{Suggestion: models.ModeSuggestion{SuggestedMode: models.ModeCode, Confidence: 0.5, Reason: "r", Message: "m"}},
			`{"type":"mode_suggestion","data":{"suggested_mode":"code","confidence":0.5,"reason":"r","message":"m"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, Content{Text: "a"}))
	require.NoError(t, WriteSSE(&buf, Done{}))
	assert.Equal(t, "data: {\"type\":\"content\",\"text\":\"a\"}\n\ndata: {\"type\":\"done\"}\n\n", buf.String())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Done{}))
	assert.True(t, IsTerminal(Stopped{}))
	assert.True(t, IsTerminal(Error{}))
	assert.False(t, IsTerminal(End{}))
	assert.False(t, IsTerminal(Content{}))
}
