package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Models wrap JSON in code fences, add trailing commas, or bury it in
// prose. Pre-compiled patterns for the cleanup strategies.
var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\n?([\\s\\S]*?)\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex         = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// ParseJSON parses model output into T with fallback strategies:
//
//  1. Direct JSON parse
//  2. Strip markdown code fences and retry
//  3. Remove trailing commas and retry
//  4. Extract the outermost JSON object or array from mixed content
//
// The context string is only used in error messages.
func ParseJSON[T any](text, context string) (T, error) {
	var result T

	candidates := []string{strings.TrimSpace(text)}

	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	for _, c := range candidates[:len(candidates):len(candidates)] {
		candidates = append(candidates, trailingCommaRegex.ReplaceAllString(c, "$1"))
	}
	if m := objectRegex.FindString(text); m != "" {
		candidates = append(candidates, m, trailingCommaRegex.ReplaceAllString(m, "$1"))
	}
	if m := arrayRegex.FindString(text); m != "" {
		candidates = append(candidates, m, trailingCommaRegex.ReplaceAllString(m, "$1"))
	}

	var lastErr error
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), &result); err == nil {
			return result, nil
		} else {
			lastErr = err
		}
	}

	truncated := text
	if len(truncated) > 500 {
		truncated = truncated[:500] + "... (truncated)"
	}
	return result, fmt.Errorf("failed to parse %s as JSON: %v\nresponse: %s", context, lastErr, truncated)
}
