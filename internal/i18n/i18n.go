package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
	matcher         language.Matcher
	tags            []language.Tag
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	for _, lang := range cfg.Languages {
		name := fmt.Sprintf("locales/%s.json", lang)
		data, err := locales.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, name); err != nil {
			return nil, fmt.Errorf("failed to parse language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	if _, ok := localizers[cfg.DefaultLanguage]; !ok {
		return nil, fmt.Errorf("default language %s is not loaded", cfg.DefaultLanguage)
	}

	// the default language goes first so the matcher falls back to it
	tags := []language.Tag{language.Make(cfg.DefaultLanguage)}
	for _, lang := range cfg.Languages {
		if lang != cfg.DefaultLanguage {
			tags = append(tags, language.Make(lang))
		}
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
		matcher:         language.NewMatcher(tags),
		tags:            tags,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Match picks the loaded language that best serves an Accept-Language header
func (l *Localizer) Match(acceptLanguage string) string {
	if acceptLanguage == "" {
		return l.defaultLanguage
	}
	preferred, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(preferred) == 0 {
		return l.defaultLanguage
	}
	_, index, confidence := l.matcher.Match(preferred...)
	if confidence == language.No {
		return l.defaultLanguage
	}
	base, _ := l.tags[index].Base()
	return base.String()
}

// Default returns a message in the default language
func (l *Localizer) Default(messageID string, data map[string]interface{}) string {
	return l.Get(l.defaultLanguage, messageID, data)
}

// Message IDs
const (
	MsgModeSuggestion        = "mode_suggestion"
	MsgReasonCodeTerms       = "reason_code_terms"
	MsgReasonCodeGeneric     = "reason_code_generic"
	MsgReasonTroubleTerms    = "reason_troubleshoot_terms"
	MsgReasonTroubleGeneric  = "reason_troubleshoot_generic"
	MsgReasonResearchTerms   = "reason_research_terms"
	MsgReasonResearchGeneric = "reason_research_generic"
	MsgReasonOther           = "reason_other"
	MsgRateLimitExceeded     = "rate_limit_exceeded"
	MsgInternalError         = "internal_error"
	MsgValidationFailed      = "validation_failed"
	MsgTimeout               = "timeout"
	MsgRequestCancelled      = "request_cancelled"
	MsgProviderError         = "provider_error"
	MsgStreamStopped         = "stream_stopped"
	MsgStreamStopRequested   = "stream_stop_requested"
	MsgStreamNotFound        = "stream_not_found"
	MsgSessionNotFound       = "session_not_found"
	MsgSessionDeleted        = "session_deleted"
	MsgUnauthorized          = "unauthorized"
	MsgServiceRunning        = "service_running"
)
