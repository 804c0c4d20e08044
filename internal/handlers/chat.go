package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/middleware"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/internal/protocol"
	"github.com/chatmux/chatmux/internal/services/auth"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

var errStreamingUnsupported = errors.New("response writer does not support flushing")

// HandleRoot reports that the service is up
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":        h.localizer.Get(h.lang(r), i18n.MsgServiceRunning, nil),
		"correlation_id": middleware.CorrelationID(r.Context()),
	})
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"active_streams": h.orchestrator.ActiveStreams(),
		"correlation_id": middleware.CorrelationID(r.Context()),
	})
}

// HandleMessage answers a chat message in one response
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.orchestrator.Process(r.Context(), &req, auth.UserID(r.Context()), h.lang(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStream answers a chat message as a server-sent event stream
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, errStreamingUnsupported)
		return
	}

	es, err := h.orchestrator.Stream(r.Context(), &req, auth.UserID(r.Context()), h.lang(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer es.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		ev, ok := es.Next()
		if !ok {
			return
		}
		if err := protocol.WriteSSE(w, ev); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"request_id":     es.RequestID(),
				"correlation_id": middleware.CorrelationID(r.Context()),
			}).Warn("Client went away during stream")
			return
		}
		flusher.Flush()
	}
}

// HandleStop cancels an in-flight stream
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["request_id"]
	if err := h.orchestrator.Stop(requestID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    h.localizer.Get(h.lang(r), i18n.MsgStreamStopRequested, nil),
		"request_id": requestID,
	})
}
