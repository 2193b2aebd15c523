package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ActionRespond is the sentinel action that terminates a step with a
// final answer instead of dispatching a tool.
const ActionRespond = "respond"

// Decision is the structured output of one reasoning step.
type Decision struct {
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
}

// ParseOutcome tags how a Decision was obtained from model output.
type ParseOutcome int

const (
	// ParsedStrict means the output decoded as well-formed JSON.
	ParsedStrict ParseOutcome = iota
	// ParsedDegraded means fields were scraped out of malformed output.
	ParsedDegraded
)

var (
	thoughtRe     = regexp.MustCompile(`"thought"\s*:\s*"([^"]*)"`)
	actionRe      = regexp.MustCompile(`"action"\s*:\s*"([^"]*)"`)
	actionInputRe = regexp.MustCompile(`"action_input"\s*:\s*"([^"]*)"`)
)

// ParseDecision turns completion text into a Decision.
//
// Stage one is a strict JSON decode of the first balanced object found in
// the text (models often wrap the object in prose or code fences). Stage
// two is best-effort per-field regex extraction; whatever cannot be
// recovered defaults to responding with the raw text. The outcome tag
// tells the caller which stage produced the result.
func ParseDecision(text string) (Decision, ParseOutcome) {
	if candidate := extractJSONObject(text); candidate != "" {
		var d Decision
		if err := json.Unmarshal([]byte(candidate), &d); err == nil {
			return d, ParsedStrict
		}
	}

	d := Decision{Action: ActionRespond, ActionInput: text}
	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		d.Thought = m[1]
	}
	if m := actionRe.FindStringSubmatch(text); m != nil {
		d.Action = m[1]
	}
	if m := actionInputRe.FindStringSubmatch(text); m != nil {
		d.ActionInput = m[1]
	}
	if d.Thought == "" {
		d.Thought = "Recovered fields from malformed response"
	}
	return d, ParsedDegraded
}

// extractJSONObject returns the longest balanced {...} span that is valid
// JSON, or "" if none is.
func extractJSONObject(text string) string {
	var candidates []string
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					candidates = append(candidates, text[start:i+1])
				}
			}
		}
	}

	best := ""
	for _, c := range candidates {
		if len(c) > len(best) && json.Valid([]byte(c)) {
			best = c
		}
	}
	return strings.TrimSpace(best)
}
