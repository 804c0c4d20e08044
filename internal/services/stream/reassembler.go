package stream

import (
	"regexp"
	"strings"

	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/internal/protocol"
)

// Fence delimits a code block
const Fence = "```"

// Reassembler turns raw provider fragments into content and code_block events.
// It is not safe for concurrent use; create one per stream.
type Reassembler struct {
	buf     string
	inFence bool
}

// NewReassembler creates an empty reassembler
func NewReassembler() *Reassembler {
	return &Reassembler{}
}

// Feed appends a fragment and returns the events that became unambiguous
func (r *Reassembler) Feed(fragment string) []protocol.Event {
	r.buf += fragment

	var events []protocol.Event
	if strings.Contains(r.buf, Fence) {
		parts := strings.Split(r.buf, Fence)
		for _, part := range parts[:len(parts)-1] {
			if r.inFence {
				events = append(events, codeBlock(part))
			} else if part != "" {
				events = append(events, protocol.Content{Text: part})
			}
			r.inFence = !r.inFence
		}
		r.buf = parts[len(parts)-1]
	}

	if r.inFence {
		return events
	}

	// Only a trailing run of backticks can still grow into a fence.
	cut := len(strings.TrimRight(r.buf, "`"))
	if cut > 0 {
		events = append(events, protocol.Content{Text: r.buf[:cut]})
		r.buf = r.buf[cut:]
	}
	return events
}

// Flush emits whatever is still buffered as content. An unterminated
// fence keeps its opening marker so no bytes are lost.
func (r *Reassembler) Flush() []protocol.Event {
	text := r.buf
	if r.inFence {
		text = Fence + text
	}
	r.buf = ""
	r.inFence = false

	if text == "" {
		return nil
	}
	return []protocol.Event{protocol.Content{Text: text}}
}

// Pending reports whether text is still held back
func (r *Reassembler) Pending() bool {
	return r.buf != "" || r.inFence
}

func codeBlock(part string) protocol.CodeBlock {
	lang, body, found := strings.Cut(part, "\n")
	if !found {
		return protocol.CodeBlock{Language: strings.TrimSpace(part)}
	}
	return protocol.CodeBlock{Language: strings.TrimSpace(lang), Content: body}
}

var codeBlockPattern = regexp.MustCompile("```(\\w+)?\\n([\\s\\S]*?)```")

// ExtractCodeBlock returns the first complete fenced block in text, or nil
func ExtractCodeBlock(text string) *models.CodeBlock {
	if !strings.Contains(text, Fence) {
		return nil
	}
	m := codeBlockPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	lang := m[1]
	if lang == "" {
		lang = "text"
	}
	return &models.CodeBlock{Language: lang, Content: m[2]}
}
