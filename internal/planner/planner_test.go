package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/aldersea/questor/internal/provider"
	"go.uber.org/zap"
)

// fakeCompleter returns a canned completion or an error.
type fakeCompleter struct {
	text string
	err  error
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error) {
	return f.text, f.err
}

func TestCreatePlanParsesNumberedList(t *testing.T) {
	p := New(&fakeCompleter{text: `Here is the plan:

1. Search for the population of France
2) Divide it by the area
3. Respond with the density

Note: keep each step small.`}, 0.7, zap.NewNop())

	steps := p.CreatePlan(context.Background(), "compute population density of France", "")
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3: %+v", len(steps), steps)
	}
	if steps[0].Description != "Search for the population of France" {
		t.Errorf("step 1 = %q", steps[0].Description)
	}
	if steps[1].Description != "Divide it by the area" {
		t.Errorf("step 2 = %q", steps[1].Description)
	}
	for _, s := range steps {
		if s.Status != StatusPending {
			t.Errorf("step %q status = %q, want pending", s.Description, s.Status)
		}
	}
}

func TestCreatePlanSkipsScaffoldLines(t *testing.T) {
	p := New(&fakeCompleter{text: `1. Example: do the thing
2. Actually fetch the data`}, 0.7, zap.NewNop())

	steps := p.CreatePlan(context.Background(), "goal", "")
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	if steps[0].Description != "Actually fetch the data" {
		t.Errorf("step = %q", steps[0].Description)
	}
}

func TestCreatePlanFallsBackOnError(t *testing.T) {
	p := New(&fakeCompleter{err: errors.New("backend down")}, 0.7, zap.NewNop())

	goal := "calculate 123*456 and explain the result"
	steps := p.CreatePlan(context.Background(), goal, "")
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	if steps[0].Description != goal {
		t.Errorf("fallback step = %q, want goal verbatim", steps[0].Description)
	}
}

func TestCreatePlanFallsBackOnUnparseableOutput(t *testing.T) {
	p := New(&fakeCompleter{text: "I cannot help with that."}, 0.7, zap.NewNop())

	steps := p.CreatePlan(context.Background(), "goal text", "")
	if len(steps) != 1 || steps[0].Description != "goal text" {
		t.Fatalf("got %+v, want single goal step", steps)
	}
}

func TestRefinePlanReplacesSteps(t *testing.T) {
	p := New(&fakeCompleter{text: "1. Combined step"}, 0.7, zap.NewNop())

	orig := []*Step{
		{Description: "a", Status: StatusPending},
		{Description: "b", Status: StatusPending},
	}
	refined := p.RefinePlan(context.Background(), orig, "merge the steps")
	if len(refined) != 1 {
		t.Fatalf("got %d steps, want 1", len(refined))
	}
	if refined[0].Description != "Combined step" {
		t.Errorf("refined step = %q", refined[0].Description)
	}
}

func TestRefinePlanKeepsInputOnError(t *testing.T) {
	p := New(&fakeCompleter{err: errors.New("backend down")}, 0.7, zap.NewNop())

	orig := []*Step{{Description: "keep me", Status: StatusInProgress}}
	refined := p.RefinePlan(context.Background(), orig, "feedback")
	if len(refined) != 1 || refined[0].Description != "keep me" {
		t.Fatalf("got %+v, want input unchanged", refined)
	}
	if refined[0].Status != StatusInProgress {
		t.Errorf("status = %q, want preserved", refined[0].Status)
	}
}
