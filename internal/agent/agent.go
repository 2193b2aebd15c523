package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aldersea/questor/internal/memory"
	"github.com/aldersea/questor/internal/planner"
	"github.com/aldersea/questor/internal/provider"
	"github.com/aldersea/questor/internal/tool"
	"go.uber.org/zap"
)

// Completer issues one completion request and returns the text.
type Completer interface {
	Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error)
}

// Config tunes one agent's reasoning loop.
type Config struct {
	Name         string
	MaxSteps     int
	Temperature  float64
	MemoryFanout int
}

// Agent runs the reasoning/execution loop for one goal at a time. Each
// Agent owns its Memory Store; the completion client and tool registry may
// be shared between agents.
type Agent struct {
	cfg     Config
	client  Completer
	memory  *memory.Store
	planner *planner.Planner
	tools   *tool.Registry
	logger  *zap.Logger
}

// New creates an agent from its collaborators.
func New(cfg Config, client Completer, mem *memory.Store, pl *planner.Planner, tools *tool.Registry, logger *zap.Logger) *Agent {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 5
	}
	if cfg.MemoryFanout <= 0 {
		cfg.MemoryFanout = 5
	}
	logger.Info("agent initialized",
		zap.String("name", cfg.Name),
		zap.Strings("tools", tools.List()))
	return &Agent{
		cfg:     cfg,
		client:  client,
		memory:  mem,
		planner: pl,
		tools:   tools,
		logger:  logger,
	}
}

// StepTrace records one loop iteration for the run history.
type StepTrace struct {
	Index       int            `json:"index"`
	Description string         `json:"description"`
	Thought     string         `json:"thought"`
	Action      string         `json:"action"`
	Result      string         `json:"result"`
	Status      planner.Status `json:"status"`
}

// RunResult is the outcome of one goal execution.
type RunResult struct {
	Response   string        `json:"response"`
	Steps      []StepTrace   `json:"steps"`
	StepsTaken int           `json:"steps_taken"`
	Duration   time.Duration `json:"duration"`
}

// Observer receives progress notifications while a run executes. Calls are
// made synchronously from the loop, so implementations must return quickly.
type Observer interface {
	// PlanCreated reports the step descriptions right after planning.
	PlanCreated(steps []string)
	// StepExecuted reports each trace as soon as its step finishes.
	StepExecuted(trace StepTrace)
}

const (
	msgIncomplete    = "I apologize, but I received an incomplete response format."
	msgInternalError = "I apologize, but an error occurred while processing your request."
	msgOutOfSteps    = "I apologize, but I reached the maximum number of steps without finding a solution."
)

// Run executes the loop for one goal and always produces a response text:
// reasoning failures degrade to apology messages and budget exhaustion
// yields a fixed fallback. The only error returned is context cancellation.
// obs may be nil when no progress reporting is wanted.
func (a *Agent) Run(ctx context.Context, goal string, maxSteps int, obs Observer) (*RunResult, error) {
	if maxSteps <= 0 {
		maxSteps = a.cfg.MaxSteps
	}
	started := time.Now()

	// Memory is scoped to a single run.
	if err := a.memory.Clear(ctx); err != nil {
		a.logger.Warn("memory clear failed", zap.Error(err))
	}
	if err := a.memory.Add(ctx, goal, map[string]string{"type": "user_input"}); err != nil {
		a.logger.Warn("recording goal failed", zap.Error(err))
	}

	steps := a.planner.CreatePlan(ctx, goal, "")
	a.logger.Info("plan created",
		zap.String("goal", goal),
		zap.Int("steps", len(steps)))
	if obs != nil {
		descs := make([]string, len(steps))
		for i, s := range steps {
			descs[i] = s.Description
		}
		obs.PlanCreated(descs)
	}

	result := &RunResult{}
	var lastResult *string
	augmented := goal

	i := 0
	for i < len(steps) && result.StepsTaken < maxSteps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := steps[i]
		if step.Status == planner.StatusCompleted || step.Status == planner.StatusFailed {
			i++
			continue
		}
		step.Status = planner.StatusInProgress

		decision := a.think(ctx, augmented, step.Description, lastResult)
		output, ok := a.execute(ctx, decision)
		a.record(ctx, decision, output)

		if ok {
			step.Status = planner.StatusCompleted
		} else {
			step.Status = planner.StatusFailed
		}
		trace := StepTrace{
			Index:       i,
			Description: step.Description,
			Thought:     decision.Thought,
			Action:      decision.Action,
			Result:      output,
			Status:      step.Status,
		}
		result.Steps = append(result.Steps, trace)
		result.StepsTaken++
		if obs != nil {
			obs.StepExecuted(trace)
		}

		if decision.Action == ActionRespond {
			result.Response = output
			result.Duration = time.Since(started)
			a.logger.Info("run finished", zap.Int("steps", result.StepsTaken))
			return result, nil
		}

		if ok {
			lastResult = &output
			augmented = augmented + "\nIntermediate result: " + output
		} else if rest := steps[i+1:]; len(rest) > 0 {
			// A failed step may invalidate what follows; let the planner
			// rework the remainder with the failure as feedback.
			refined := a.planner.RefinePlan(ctx, rest, output)
			steps = append(steps[:i+1], refined...)
		}
		// The loop re-enters this step; its terminal status advances i.
	}

	// All steps consumed with a tool result still in hand: close out with
	// the explanation turn the next iteration would have produced.
	if lastResult != nil && result.StepsTaken < maxSteps {
		desc := goal
		if len(steps) > 0 {
			desc = steps[len(steps)-1].Description
		}
		decision := a.think(ctx, augmented, desc, lastResult)
		output, _ := a.execute(ctx, decision)
		a.record(ctx, decision, output)
		trace := StepTrace{
			Index:       len(steps),
			Description: desc,
			Thought:     decision.Thought,
			Action:      decision.Action,
			Result:      output,
			Status:      planner.StatusCompleted,
		}
		result.Steps = append(result.Steps, trace)
		result.StepsTaken++
		if obs != nil {
			obs.StepExecuted(trace)
		}
		result.Response = output
		result.Duration = time.Since(started)
		return result, nil
	}

	a.logger.Warn("run ended without response",
		zap.Int("steps", result.StepsTaken),
		zap.Int("max_steps", maxSteps))
	result.Response = msgOutOfSteps
	result.Duration = time.Since(started)
	return result, nil
}

const thinkSystemPrompt = "You are an intelligent AI assistant. Analyze the situation and determine the best course of action."

// think decides the next action for one step. It never fails: reasoning
// errors degrade to a terminal respond Decision carrying an apology.
func (a *Agent) think(ctx context.Context, goal, step string, lastResult *string) Decision {
	// With a tool result in hand there is nothing left to decide; turn the
	// result into a final explanation.
	if lastResult != nil {
		text, err := a.explain(ctx, step, *lastResult)
		if err != nil {
			return a.errorDecision(err)
		}
		return Decision{
			Thought:     "We have the result, now explain it clearly.",
			Action:      ActionRespond,
			ActionInput: text,
		}
	}

	memories, err := a.memory.Search(ctx, step, a.cfg.MemoryFanout)
	if err != nil {
		return a.errorDecision(err)
	}

	prompt := fmt.Sprintf(`Goal: %s

Current step: %s

Relevant memories:
%s

Available tools:
%s

Decide the next action. Respond with strict JSON only:
{"thought": "your reasoning", "action": "tool_name or %q", "action_input": "input for the tool, or the response text"}`,
		goal, step, strings.Join(memories, "\n"), a.tools.Descriptions(), ActionRespond)

	text, err := a.client.Complete(ctx, []provider.Message{
		{Role: "system", Content: thinkSystemPrompt},
		{Role: "user", Content: prompt},
	}, a.cfg.Temperature)
	if err != nil {
		return a.errorDecision(err)
	}

	decision, outcome := ParseDecision(text)
	if outcome == ParsedDegraded {
		a.logger.Warn("decision recovered from malformed output", zap.String("raw", text))
	}
	if decision.Action == "" {
		a.logger.Warn("decision missing required fields", zap.String("raw", text))
		return Decision{
			Thought:     "Incomplete response format",
			Action:      ActionRespond,
			ActionInput: msgIncomplete,
		}
	}
	return decision
}

// explain asks the model to present a tool result in context of the step.
func (a *Agent) explain(ctx context.Context, step, result string) (string, error) {
	prompt := fmt.Sprintf(`Original request: %s
Result: %s

Provide a clear and simple explanation of this result. Make it easy to understand.`, step, result)

	text, err := a.client.Complete(ctx, []provider.Message{
		{Role: "system", Content: "You are a helpful assistant that explains results clearly and simply."},
		{Role: "user", Content: prompt},
	}, a.cfg.Temperature)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (a *Agent) errorDecision(err error) Decision {
	a.logger.Error("thinking failed", zap.Error(err))
	return Decision{
		Thought:     fmt.Sprintf("Error occurred: %v", err),
		Action:      ActionRespond,
		ActionInput: msgInternalError,
	}
}

// execute dispatches a Decision. The returned flag reports whether the
// action succeeded; failures are rendered as result text rather than
// errors, since an unknown tool name is a normal, user-visible outcome.
func (a *Agent) execute(ctx context.Context, d Decision) (string, bool) {
	if d.Action == ActionRespond {
		return d.ActionInput, true
	}

	t, ok := a.tools.Get(d.Action)
	if !ok {
		a.logger.Warn("tool not found", zap.String("tool", d.Action))
		return fmt.Sprintf("I apologize, but I couldn't find the tool: %s", d.Action), false
	}

	out, err := t.Invoke(ctx, d.ActionInput)
	if err != nil {
		a.logger.Error("tool execution failed",
			zap.String("tool", d.Action), zap.Error(err))
		return fmt.Sprintf("Tool %s failed: %v", d.Action, err), false
	}
	return out, true
}

// record appends the iteration's trace to memory for later recall.
func (a *Agent) record(ctx context.Context, d Decision, output string) {
	entry := fmt.Sprintf("Thought: %s\nAction: %s\nResult: %s", d.Thought, d.Action, output)
	if err := a.memory.Add(ctx, entry, map[string]string{"type": "agent_action"}); err != nil {
		a.logger.Warn("recording step failed", zap.Error(err))
	}
}
