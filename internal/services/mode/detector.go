package mode

import (
	"regexp"
	"strings"
	"time"

	"github.com/chatmux/chatmux/internal/i18n"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/internal/services/cache"
	"github.com/sirupsen/logrus"
)

// ConfidenceThreshold is the minimum normalized score for a suggestion
const ConfidenceThreshold = 0.3

const (
	keywordWeight  = 1
	patternWeight  = 2
	maxReasonTerms = 3
)

// Translator renders localized messages
type Translator interface {
	Get(lang, messageID string, data map[string]interface{}) string
}

// Score is the result of matching a query against one mode's table
type Score struct {
	Mode            models.ChatMode
	Normalized      float64
	MatchedKeywords []string
	MatchedPatterns []string
}

// Detection is the outcome of Detect. Suggested is empty when no switch is proposed.
type Detection struct {
	Suggested  models.ChatMode
	Best       models.ChatMode
	Confidence float64
	Reason     string
}

type table struct {
	mode     models.ChatMode
	keywords []string
	patterns []*regexp.Regexp
}

// Classifier scores free text against the code, troubleshoot and research tables
type Classifier struct {
	tables     []table
	scores     *cache.TTLCache[[]Score]
	translator Translator
	logger     *logrus.Logger
	onLookup   func(hit bool)
}

// NewClassifier creates a classifier memoizing score tables for ttl
func NewClassifier(ttl time.Duration, translator Translator, logger *logrus.Logger, opts ...cache.Option) *Classifier {
	return &Classifier{
		tables:     defaultTables(),
		scores:     cache.New[[]Score]("mode_detection", ttl, opts...),
		translator: translator,
		logger:     logger,
	}
}

// Cache exposes the score cache so the janitor can sweep it
func (c *Classifier) Cache() *cache.TTLCache[[]Score] {
	return c.scores
}

// OnLookup registers a hook reporting cache hits and misses
func (c *Classifier) OnLookup(fn func(hit bool)) {
	c.onLookup = fn
}

// Scores returns the per-mode scores for query, in table order
func (c *Classifier) Scores(query string) []Score {
	key := cache.QueryKey(query)
	if scores, ok := c.scores.Get(key); ok {
		c.lookup(true)
		c.logger.WithField("query_length", len(query)).Debug("Mode detection cache hit")
		return scores
	}
	c.lookup(false)

	scores := c.score(query)
	c.scores.Set(key, scores, 0)
	return scores
}

// Detect picks the best mode for query and proposes it when it differs from current
func (c *Classifier) Detect(query string, current models.ChatMode, lang string) Detection {
	scores := c.Scores(query)

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Normalized > best.Normalized {
			best = s
		}
	}

	d := Detection{
		Best:       best.Mode,
		Confidence: best.Normalized,
		Reason:     c.reason(best, lang),
	}
	if best.Normalized >= ConfidenceThreshold && best.Mode != current {
		d.Suggested = best.Mode
	}

	c.logger.WithFields(logrus.Fields{
		"suggested_mode": d.Suggested,
		"confidence":     d.Confidence,
	}).Debug("Mode detection completed")

	return d
}

// ShouldSuggestModeSwitch returns a suggestion when the query fits another mode better
func (c *Classifier) ShouldSuggestModeSwitch(query string, current models.ChatMode, lang string) *models.ModeSuggestion {
	d := c.Detect(query, current, lang)
	if d.Suggested == "" {
		return nil
	}

	name := d.Suggested.DisplayName()
	return &models.ModeSuggestion{
		SuggestedMode: d.Suggested,
		Confidence:    d.Confidence,
		Reason:        d.Reason,
		Message: c.translator.Get(lang, i18n.MsgModeSuggestion, map[string]interface{}{
			"Mode":   name,
			"Reason": d.Reason,
		}),
	}
}

func (c *Classifier) score(query string) []Score {
	lower := strings.ToLower(query)
	words := len(strings.Fields(query))
	if words < 1 {
		words = 1
	}

	scores := make([]Score, 0, len(c.tables))
	for _, t := range c.tables {
		s := Score{Mode: t.mode}
		raw := 0

		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				raw += keywordWeight
				s.MatchedKeywords = append(s.MatchedKeywords, kw)
			}
		}
		for _, p := range t.patterns {
			if p.MatchString(lower) {
				raw += patternWeight
				s.MatchedPatterns = append(s.MatchedPatterns, p.String())
			}
		}

		s.Normalized = float64(raw) / float64(words)
		scores = append(scores, s)
	}
	return scores
}

func (c *Classifier) reason(s Score, lang string) string {
	terms := s.MatchedKeywords
	if len(terms) > maxReasonTerms {
		terms = terms[:maxReasonTerms]
	}

	var withTerms, generic string
	switch s.Mode {
	case models.ModeCode:
		withTerms, generic = i18n.MsgReasonCodeTerms, i18n.MsgReasonCodeGeneric
	case models.ModeTroubleshoot:
		withTerms, generic = i18n.MsgReasonTroubleTerms, i18n.MsgReasonTroubleGeneric
	case models.ModeResearch:
		withTerms, generic = i18n.MsgReasonResearchTerms, i18n.MsgReasonResearchGeneric
	default:
		return c.translator.Get(lang, i18n.MsgReasonOther, nil)
	}

	if len(terms) == 0 {
		return c.translator.Get(lang, generic, nil)
	}
	return c.translator.Get(lang, withTerms, map[string]interface{}{
		"Keywords": strings.Join(terms, ", "),
	})
}

func (c *Classifier) lookup(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}
