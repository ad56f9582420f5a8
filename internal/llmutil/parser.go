// Package llmutil extracts structured content out of free-form model
// replies: JSON payloads possibly wrapped in markdown fences or
// conversational text, and the trailing fenced action string the local
// executor prompts for.
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

var (
	// Backticks are written as \x60 because Go raw strings cannot contain them.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	jsonArrayRegex  = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
	fencedRegex     = regexp.MustCompile("(?s)\x60\x60\x60+\\s*(.*?)\\s*\x60\x60\x60+")
)

// ParseJSON parses a model reply into T, tolerating markdown fences and
// leading/trailing prose around the JSON payload.
func ParseJSON[T any](response string) (*T, error) {
	response = strings.TrimSpace(response)
	payload := response

	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.Contains(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			payload = matches[1]
		}
	} else if !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		// Conversational text around a bare JSON structure. An array can
		// contain objects, so whichever opener comes first wins.
		objIdx := strings.Index(response, "{")
		arrIdx := strings.Index(response, "[")
		if isArray && (objIdx == -1 || arrIdx < objIdx) {
			if s, ok := sliceBetween(response, "[", "]"); ok {
				payload = s
			}
		} else if s, ok := sliceBetween(response, "{", "}"); ok && isObject {
			payload = s
		}
	}

	var result T
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON response: %w (extracted: %s)", err, Truncate(payload, 500))
	}
	return &result, nil
}

func sliceBetween(s, open, close string) (string, bool) {
	first := strings.Index(s, open)
	last := strings.LastIndex(s, close)
	if first == -1 || last == -1 || last <= first {
		return "", false
	}
	return s[first : last+1], true
}

// ExtractFenced returns the content of the last ``` fenced block in the
// reply. The executor prompt asks the model to finish with its chosen
// action in such a fence ("In summary, the next action I will perform is
// ```click [7]```"), so the last fence wins over any fences inside the
// reasoning.
func ExtractFenced(response string) (string, bool) {
	matches := fencedRegex.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return "", false
	}
	content := strings.TrimSpace(matches[len(matches)-1][1])
	if content == "" {
		return "", false
	}
	return content, true
}

// Truncate shortens s to at most maxLen bytes, appending an ellipsis when
// it cut anything. Used for error messages and log fields only.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
