package llm

import (
	"regexp"
	"strings"
)

var fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// ExtractJSON pulls the JSON object out of a completion that may wrap it
// in a markdown code fence or surrounding prose. Returns the raw input
// when no object boundary is found.
func ExtractJSON(text string) string {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
