package ai

import (
	"context"
	"errors"

	"github.com/chatmux/chatmux/internal/models"
)

// ErrEmptyResponse is returned when the upstream answers without content
var ErrEmptyResponse = errors.New("no response from AI")

// Message is one entry of the upstream conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is everything the provider needs for one completion
type Prompt struct {
	Mode        models.ChatMode
	System      string
	Messages    []Message
	Temperature float64
}

// Provider generates completions from an upstream language model
type Provider interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
	GenerateStream(ctx context.Context, prompt Prompt) (Stream, error)
}

// Stream yields text fragments. Recv returns io.EOF once the upstream
// signals the end; any other error ends the stream. Cancelling the
// context passed to GenerateStream unblocks a pending Recv.
type Stream interface {
	Recv() (string, error)
	Close() error
}
