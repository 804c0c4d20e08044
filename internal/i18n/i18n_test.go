package i18n

import (
	"testing"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizer_Get(t *testing.T) {
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "zh"}})
	require.NoError(t, err)

	msg := l.Get("en", MsgModeSuggestion, map[string]interface{}{"Mode": "Code", "Reason": "Because."})
	assert.Equal(t, "This seems to be a query which is best suited for Code mode. Because. Do you want to switch to Code mode?", msg)

	assert.Equal(t, "Rate limit exceeded", l.Get("fr", MsgRateLimitExceeded, nil), "unknown language falls back to default")
	assert.Equal(t, "请求超时", l.Get("zh", MsgTimeout, nil))
	assert.Equal(t, "missing_id", l.Default("missing_id", nil))
}

func TestNewLocalizer_Errors(t *testing.T) {
	_, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"xx"}})
	assert.Error(t, err)

	_, err = NewLocalizer(&config.I18nConfig{DefaultLanguage: "de", Languages: []string{"en"}})
	assert.Error(t, err)
}

func TestLocalizer_Match(t *testing.T) {
	l, err := NewLocalizer(&config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en", "zh"}})
	require.NoError(t, err)

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"zh-CN,zh;q=0.9,en;q=0.8", "zh"},
		{"en-US", "en"},
		{"fr-FR", "en"},
		{";;;", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Match(tt.header))
		})
	}
}
