package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/middleware"
	"github.com/chatmux/chatmux/internal/services/chat"
	"github.com/chatmux/chatmux/internal/services/storage"
)

// statusClientClosedRequest reports a request the client abandoned
const statusClientClosedRequest = 499

type errorBody struct {
	Detail        string `json:"detail"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// lang picks the response language from ?lang= or Accept-Language
func (h *Handler) lang(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return h.localizer.Match(lang)
	}
	return h.localizer.Match(r.Header.Get("Accept-Language"))
}

// writeError maps err onto a status and a client-safe message. Only
// validation details are echoed; everything else is logged.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	lang := h.lang(r)
	correlationID := middleware.CorrelationID(r.Context())

	var status int
	var detail string
	switch {
	case errors.Is(err, chat.ErrValidation):
		status = http.StatusBadRequest
		details := strings.TrimPrefix(err.Error(), chat.ErrValidation.Error()+": ")
		detail = h.localizer.Get(lang, i18n.MsgValidationFailed, map[string]interface{}{"Details": details})
	case errors.Is(err, chat.ErrTimeout):
		status = http.StatusRequestTimeout
		detail = h.localizer.Get(lang, i18n.MsgTimeout, nil)
	case errors.Is(err, chat.ErrCancelled):
		status = statusClientClosedRequest
		detail = h.localizer.Get(lang, i18n.MsgRequestCancelled, nil)
	case errors.Is(err, chat.ErrProvider):
		status = http.StatusBadGateway
		detail = h.localizer.Get(lang, i18n.MsgProviderError, nil)
	case errors.Is(err, chat.ErrStreamNotFound):
		status = http.StatusNotFound
		detail = h.localizer.Get(lang, i18n.MsgStreamNotFound, nil)
	case errors.Is(err, storage.ErrSessionNotFound):
		status = http.StatusNotFound
		detail = h.localizer.Get(lang, i18n.MsgSessionNotFound, nil)
	default:
		status = http.StatusInternalServerError
		detail = h.localizer.Get(lang, i18n.MsgInternalError, nil)
	}

	entry := h.logger.WithError(err).WithField("correlation_id", correlationID)
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error("Request failed")
	case status == statusClientClosedRequest:
		entry.Info("Client closed request")
	default:
		entry.Warn("Request rejected")
	}

	writeJSON(w, status, errorBody{Detail: detail, CorrelationID: correlationID})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", chat.ErrValidation, err)
	}
	return nil
}
