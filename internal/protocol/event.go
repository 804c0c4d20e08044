package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/chatmux/chatmux/internal/models"
)

// Event is one message of a streaming response. The set of implementations is closed.
type Event interface {
	isEvent()
}

// Start opens a stream and exposes the ids needed to stop it
type Start struct {
	MessageID string
	RequestID string
}

// ModeSuggestion proposes a better suited mode
type ModeSuggestion struct {
	Suggestion models.ModeSuggestion
}

// Content is plain response text
type Content struct {
	Text string
}

// CodeBlock is a complete fenced block
type CodeBlock struct {
	Language string
	Content  string
}

// Error terminates a stream after a provider failure
type Error struct {
	Message string
}

// Stopped terminates a cancelled stream
type Stopped struct {
	Message string
}

// End terminates a completed stream and is followed by Done
type End struct {
	MessageID string
}

// Done is the final marker after End
type Done struct{}

func (Start) isEvent()          {}
func (ModeSuggestion) isEvent() {}
func (Content) isEvent()        {}
func (CodeBlock) isEvent()      {}
func (Error) isEvent()          {}
func (Stopped) isEvent()        {}
func (End) isEvent()            {}
func (Done) isEvent()           {}

// IsTerminal reports whether e closes a stream
func IsTerminal(e Event) bool {
	switch e.(type) {
	case Error, Stopped, Done:
		return true
	default:
		return false
	}
}

type wireEvent struct {
	Type      string                 `json:"type"`
	MessageID string                 `json:"message_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Data      *models.ModeSuggestion `json:"data,omitempty"`
	Text      *string                `json:"text,omitempty"`
	Language  *string                `json:"language,omitempty"`
	Content   *string                `json:"content,omitempty"`
	Message   *string                `json:"message,omitempty"`
}

// Encode converts an event to its JSON wire form
func Encode(e Event) ([]byte, error) {
	var w wireEvent
	switch ev := e.(type) {
	case Start:
		w = wireEvent{Type: "start", MessageID: ev.MessageID, RequestID: ev.RequestID}
	case ModeSuggestion:
		s := ev.Suggestion
		w = wireEvent{Type: "mode_suggestion", Data: &s}
	case Content:
		w = wireEvent{Type: "content", Text: &ev.Text}
	case CodeBlock:
		w = wireEvent{Type: "code_block", Language: &ev.Language, Content: &ev.Content}
	case Error:
		w = wireEvent{Type: "error", Message: &ev.Message}
	case Stopped:
		w = wireEvent{Type: "stopped", Message: &ev.Message}
	case End:
		w = wireEvent{Type: "end", MessageID: ev.MessageID}
	case Done:
		w = wireEvent{Type: "done"}
	default:
		return nil, fmt.Errorf("unknown event %T", e)
	}
	return json.Marshal(w)
}

// WriteSSE writes e as a single "data: <json>" frame
func WriteSSE(out io.Writer, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "data: %s\n\n", data)
	return err
}
