package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/internal/protocol"
	"github.com/chatmux/chatmux/internal/services/ai"
	"github.com/chatmux/chatmux/internal/services/stream"
	"github.com/sirupsen/logrus"
)

// EventStream is a pull-based sequence of protocol events for one request.
// The first event is always Start and the last is exactly one of Done,
// Stopped or Error. It is not safe for concurrent use.
type EventStream struct {
	o          *Orchestrator
	ctx        context.Context
	req        *models.ChatRequest
	userID     string
	lang       string
	prompt     ai.Prompt
	requestID  string
	messageID  string
	suggestion *models.ModeSuggestion

	assembler *stream.Reassembler
	upstream  ai.Stream
	answer    strings.Builder

	started  bool
	ended    bool
	finished bool
	pending  []protocol.Event
	closeOne sync.Once
}

// RequestID identifies the stream for Stop
func (s *EventStream) RequestID() string {
	return s.requestID
}

// MessageID identifies the assistant message
func (s *EventStream) MessageID() string {
	return s.messageID
}

// Next returns the next event, or false once the terminal event was returned.
// Cancellation is checked on every call until End is handed out, so a stop
// takes effect before the next content is delivered and the answer is not stored.
func (s *EventStream) Next() (protocol.Event, bool) {
	if s.finished {
		return nil, false
	}

	if !s.started {
		s.started = true
		if s.suggestion != nil {
			s.pending = append(s.pending, protocol.ModeSuggestion{Suggestion: *s.suggestion})
		}
		return protocol.Start{MessageID: s.messageID, RequestID: s.requestID}, true
	}

	for {
		if !s.ended && s.ctx.Err() != nil {
			return s.stop(), true
		}

		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			switch ev.(type) {
			case protocol.End:
				// the answer is final; a later Stop finds no record
				s.ended = true
				s.o.registry.Remove(s.requestID)
				s.o.persist(s.req, s.userID, s.answer.String())
			case protocol.Done:
				s.finish("completed")
			}
			return ev, true
		}

		if s.upstream == nil {
			upstream, err := s.o.provider.GenerateStream(s.ctx, s.prompt)
			if err != nil {
				return s.fail(err), true
			}
			s.upstream = upstream
		}

		text, err := s.upstream.Recv()
		if s.ctx.Err() != nil {
			return s.stop(), true
		}
		if errors.Is(err, io.EOF) {
			s.complete()
			continue
		}
		if err != nil {
			return s.fail(err), true
		}

		s.answer.WriteString(text)
		s.pending = append(s.pending, s.assembler.Feed(text)...)
	}
}

// Close releases the stream. It is safe to call at any point and more than once.
func (s *EventStream) Close() {
	if !s.finished {
		s.finish("abandoned")
	}
}

// complete queues the tail of a finished upstream
func (s *EventStream) complete() {
	s.pending = append(s.pending, s.assembler.Flush()...)
	s.pending = append(s.pending, protocol.End{MessageID: s.messageID}, protocol.Done{})
}

func (s *EventStream) stop() protocol.Event {
	s.pending = nil
	s.finish("stopped")
	s.o.logger.WithField("request_id", s.requestID).Info("Stream stopped by client")
	return protocol.Stopped{Message: s.o.message(s.lang, i18n.MsgStreamStopped)}
}

func (s *EventStream) fail(err error) protocol.Event {
	s.pending = nil
	s.finish("error")
	s.o.logger.WithError(err).WithFields(logrus.Fields{
		"request_id": s.requestID,
		"mode":       s.req.Mode,
	}).Error("Error in streaming response")
	return protocol.Error{Message: s.o.message(s.lang, i18n.MsgProviderError)}
}

func (s *EventStream) finish(outcome string) {
	s.closeOne.Do(func() {
		s.finished = true
		s.o.registry.Remove(s.requestID)
		if s.upstream != nil {
			s.upstream.Close()
		}
		s.o.metrics.StreamFinished(outcome)
	})
}
