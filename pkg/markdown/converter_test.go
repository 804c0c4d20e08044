package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{"bold", "**hi**", []string{"<strong>hi</strong>"}},
		{"fenced code", "```python\nprint(1)\n```", []string{`<code class="language-python">`, "print(1)"}},
		{"header", "## Title", []string{"<h2>Title</h2>"}},
		{"list", "- a\n- b", []string{"<ul>", "<li>a</li>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := ToHTML(tt.input)
			for _, want := range tt.contains {
				assert.Contains(t, html, want)
			}
		})
	}

	assert.NotContains(t, ToHTML("a <script>alert(1)</script> b"), "<script>")
	assert.Equal(t, "", ToHTML("   "))
}
