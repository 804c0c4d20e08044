package mode

import (
	"regexp"

	"github.com/chatmux/chatmux/internal/models"
)

// Table order decides ties.
func defaultTables() []table {
	return []table{
		{
			mode: models.ModeCode,
			keywords: []string{
				"code", "function", "class", "method", "variable", "algorithm", "programming",
				"python", "javascript", "java", "c++", "react", "node", "api", "database",
				"sql", "html", "css", "framework", "library", "import", "export", "syntax",
				"compile", "execute", "run", "build", "deploy", "git", "repository", "commit",
				"write code", "create function", "implement", "develop", "build app", "script",
			},
			patterns: compile(
				`\b(def|function|class|import|from|return|if|else|for|while|try|catch)\b`,
				`\b(console\.log|print|echo|printf)\b`,
				`\b(\.js|\.py|\.java|\.cpp|\.html|\.css|\.json|\.xml)\b`,
				`[{}()\[\];]`,
				`(write|create|build|generate|implement).*(code|function|class|app|script)`,
				`(how to|help me).*(code|program|implement|build|create)`,
			),
		},
		{
			mode: models.ModeTroubleshoot,
			keywords: []string{
				"error", "bug", "issue", "problem", "fix", "debug", "troubleshoot", "broken",
				"not working", "failed", "exception", "crash", "freeze", "hang", "slow",
				"memory leak", "performance", "optimize", "stack trace", "traceback",
				"undefined", "null", "reference error", "syntax error", "runtime error",
				"compilation error", "build error", "deployment error", "connection error",
			},
			patterns: compile(
				`\b(error|exception|failed|crash|bug|issue|problem|fix|debug)\b`,
				`\b(not working|doesn't work|won't work|broken|failing)\b`,
				`\b(stack trace|traceback|error message|exception thrown)\b`,
				`(why is|what's wrong|help fix|solve|resolve).*(error|issue|problem)`,
				`(getting|receiving|encountering).*(error|exception|issue)`,
			),
		},
		{
			mode: models.ModeResearch,
			keywords: []string{
				"research", "analyze", "study", "investigate", "explore", "compare",
				"what is", "how does", "explain", "definition", "concept", "theory",
				"history", "background", "overview", "summary", "analysis", "evaluation",
				"pros and cons", "advantages", "disadvantages", "benefits", "drawbacks",
				"trends", "statistics", "data", "report", "findings", "conclusion",
			},
			patterns: compile(
				`\b(what is|what are|how does|how do|why is|why are|when is|when are)\b`,
				`\b(explain|describe|analyze|compare|contrast|evaluate|assess)\b`,
				`\b(research|study|investigate|explore|examine|review)\b`,
				`(tell me about|give me information|i want to know|i need to understand)`,
				`(pros and cons|advantages and disadvantages|benefits and drawbacks)`,
			),
		},
	}
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}
