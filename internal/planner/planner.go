package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aldersea/questor/internal/provider"
	"go.uber.org/zap"
)

// Status tracks a step through the execution loop.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Step is a single entry of an execution plan.
type Step struct {
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	Subtasks    []json.RawMessage `json:"subtasks,omitempty"`
}

// Completer issues one completion request and returns the text.
type Completer interface {
	Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error)
}

// Planner breaks a goal down into an ordered list of executable steps.
type Planner struct {
	client      Completer
	temperature float64
	logger      *zap.Logger
}

// New creates a Planner using the given completion client.
func New(client Completer, temperature float64, logger *zap.Logger) *Planner {
	return &Planner{client: client, temperature: temperature, logger: logger}
}

const planSystemPrompt = "You are a task planning expert, skilled at breaking down complex goals into executable steps."

// CreatePlan turns a goal into an ordered sequence of steps.
//
// It never fails: if the completion request errors or nothing parseable
// comes back, the plan degrades to a single step carrying the goal verbatim.
func (p *Planner) CreatePlan(ctx context.Context, goal, context_ string) []*Step {
	prompt := fmt.Sprintf(`Goal: %s
Context: %s

Break this goal into the smallest number of concrete, executable steps.
Each step must be clear and actionable. Return only a numbered list:
1. First step
2. Second step`, goal, context_)

	text, err := p.client.Complete(ctx, []provider.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: prompt},
	}, p.temperature)
	if err != nil {
		p.logger.Warn("plan creation failed, falling back to single step", zap.Error(err))
		return []*Step{{Description: goal, Status: StatusPending}}
	}

	steps := parseSteps(text)
	if len(steps) == 0 {
		p.logger.Warn("no steps parsed from plan output, falling back to single step")
		return []*Step{{Description: goal, Status: StatusPending}}
	}
	return steps
}

// RefinePlan reworks an existing plan based on feedback.
//
// Failure here is a no-op rather than a degrade: a broken refinement must
// not destroy a working plan, so the input steps are returned unchanged.
func (p *Planner) RefinePlan(ctx context.Context, steps []*Step, feedback string) []*Step {
	var current strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&current, "%d. %s\n", i+1, s.Description)
	}

	prompt := fmt.Sprintf(`Current plan:
%s
Feedback:
%s

Rework the plan based on the feedback. Return only the revised numbered list.`, current.String(), feedback)

	text, err := p.client.Complete(ctx, []provider.Message{
		{Role: "system", Content: "You are a task planning expert, skilled at optimizing execution plans."},
		{Role: "user", Content: prompt},
	}, p.temperature)
	if err != nil {
		p.logger.Warn("plan refinement failed, keeping current plan", zap.Error(err))
		return steps
	}

	refined := parseSteps(text)
	if len(refined) == 0 {
		p.logger.Warn("no steps parsed from refinement output, keeping current plan")
		return steps
	}
	return refined
}

// numberedLineRe matches "3. do something" and "3) do something".
var numberedLineRe = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)

// scaffoldMarkers are leading words of template/example lines the model
// sometimes echoes back; such lines are not steps.
var scaffoldMarkers = []string{"example", "format", "output", "note", "step n"}

func parseSteps(text string) []*Step {
	var steps []*Step
	for _, line := range strings.Split(text, "\n") {
		m := numberedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		desc := strings.TrimSpace(m[1])
		if desc == "" || isScaffold(desc) {
			continue
		}
		steps = append(steps, &Step{Description: desc, Status: StatusPending})
	}
	return steps
}

func isScaffold(desc string) bool {
	lower := strings.ToLower(desc)
	for _, marker := range scaffoldMarkers {
		if strings.HasPrefix(lower, marker) {
			return true
		}
	}
	return false
}
