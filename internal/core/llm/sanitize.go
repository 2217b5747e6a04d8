package llm

import (
	"regexp"
	"strings"
)

var (
	// a response that is one fenced block from start to end
	reWholeFence = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \\t]*\\n?(.*?)\\s*```$")
	// a fenced block after some preamble
	reFence = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\n?(.*?)\\s*```")
)

// StripCodeFences removes a Markdown code fence around the model's JSON, if any.
// A response that already starts with a JSON value is only trimmed, so fences
// inside string values survive.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	if m := reWholeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	// unterminated fence
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		return strings.TrimSpace(s)
	}
	if m := reFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
