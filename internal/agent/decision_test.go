package agent

import (
	"testing"
)

func TestParseDecisionStrictJSON(t *testing.T) {
	text := `{"thought": "multiply the numbers", "action": "calculator", "action_input": "123*456"}`

	d, outcome := ParseDecision(text)
	if outcome != ParsedStrict {
		t.Fatalf("outcome = %v, want ParsedStrict", outcome)
	}
	if d.Thought != "multiply the numbers" {
		t.Errorf("thought = %q", d.Thought)
	}
	if d.Action != "calculator" {
		t.Errorf("action = %q", d.Action)
	}
	if d.ActionInput != "123*456" {
		t.Errorf("action_input = %q", d.ActionInput)
	}
}

func TestParseDecisionJSONInProse(t *testing.T) {
	text := "Sure, here is my decision:\n```json\n" +
		`{"thought": "done", "action": "respond", "action_input": "the answer is 42"}` +
		"\n```\nLet me know if you need anything else."

	d, outcome := ParseDecision(text)
	if outcome != ParsedStrict {
		t.Fatalf("outcome = %v, want ParsedStrict", outcome)
	}
	if d.Action != ActionRespond {
		t.Errorf("action = %q", d.Action)
	}
	if d.ActionInput != "the answer is 42" {
		t.Errorf("action_input = %q", d.ActionInput)
	}
}

func TestParseDecisionBracesInsideStrings(t *testing.T) {
	text := `{"thought": "use {curly} braces", "action": "respond", "action_input": "ok"}`

	d, outcome := ParseDecision(text)
	if outcome != ParsedStrict {
		t.Fatalf("outcome = %v, want ParsedStrict", outcome)
	}
	if d.Thought != "use {curly} braces" {
		t.Errorf("thought = %q", d.Thought)
	}
}

func TestParseDecisionDegradedFieldScrape(t *testing.T) {
	// Trailing comma makes this invalid JSON; the fields are still there.
	text := `{"thought": "fetch it", "action": "http_fetch", "action_input": "https://example.com",}`

	d, outcome := ParseDecision(text)
	if outcome != ParsedDegraded {
		t.Fatalf("outcome = %v, want ParsedDegraded", outcome)
	}
	if d.Action != "http_fetch" {
		t.Errorf("action = %q", d.Action)
	}
	if d.ActionInput != "https://example.com" {
		t.Errorf("action_input = %q", d.ActionInput)
	}
	if d.Thought != "fetch it" {
		t.Errorf("thought = %q", d.Thought)
	}
}

func TestParseDecisionPlainTextDefaultsToRespond(t *testing.T) {
	text := "The capital of France is Paris."

	d, outcome := ParseDecision(text)
	if outcome != ParsedDegraded {
		t.Fatalf("outcome = %v, want ParsedDegraded", outcome)
	}
	if d.Action != ActionRespond {
		t.Errorf("action = %q, want respond", d.Action)
	}
	if d.ActionInput != text {
		t.Errorf("action_input = %q, want raw text", d.ActionInput)
	}
	if d.Thought == "" {
		t.Error("thought should carry a placeholder")
	}
}

func TestParseDecisionPrefersLongestValidObject(t *testing.T) {
	text := `{"k": 1} and then {"thought": "t", "action": "respond", "action_input": "long answer"}`

	d, outcome := ParseDecision(text)
	if outcome != ParsedStrict {
		t.Fatalf("outcome = %v, want ParsedStrict", outcome)
	}
	if d.ActionInput != "long answer" {
		t.Errorf("action_input = %q", d.ActionInput)
	}
}

func TestExtractJSONObjectNoneFound(t *testing.T) {
	if got := extractJSONObject("no json here"); got != "" {
		t.Errorf("extractJSONObject = %q, want empty", got)
	}
	if got := extractJSONObject("{broken"); got != "" {
		t.Errorf("extractJSONObject = %q, want empty", got)
	}
}
