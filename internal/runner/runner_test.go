package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aldersea/questor/internal/agent"
	"github.com/aldersea/questor/internal/events"
	"github.com/aldersea/questor/internal/memory"
	"github.com/aldersea/questor/internal/planner"
	"github.com/aldersea/questor/internal/provider"
	"github.com/aldersea/questor/internal/tool"
	"go.uber.org/zap"
)

type fakeCompleter struct{}

func (fakeCompleter) Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error) {
	system := messages[0].Content
	if strings.Contains(system, "task planning expert") {
		return "1. Answer the question", nil
	}
	return `{"thought": "t", "action": "respond", "action_input": "forty-two"}`, nil
}

type memIndex struct{ texts []string }

func (m *memIndex) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	m.texts = append(m.texts, text)
	return nil
}
func (m *memIndex) Query(ctx context.Context, text string, limit int) ([]string, error) {
	return m.texts, nil
}
func (m *memIndex) Clear(ctx context.Context) error { m.texts = nil; return nil }

type fakeStore struct {
	mu       sync.Mutex
	running  []string
	finished map[string]string // run id -> status
	response map[string]string
	done     chan string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		finished: make(map[string]string),
		response: make(map[string]string),
		done:     make(chan string, 8),
	}
}

func (f *fakeStore) MarkRunning(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = append(f.running, id)
	return nil
}

func (f *fakeStore) FinishRun(ctx context.Context, id, status, response string, steps []agent.StepTrace, stepsTaken int) error {
	f.mu.Lock()
	f.finished[id] = status
	f.response[id] = response
	f.mu.Unlock()
	f.done <- id
	return nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []*events.RunEvent
}

func (f *fakeSink) Publish(ctx context.Context, ev *events.RunEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestRunner(t *testing.T) (*Runner, *fakeStore, *fakeSink) {
	t.Helper()
	logger := zap.NewNop()
	mem := memory.NewStore(&memIndex{}, logger)
	pl := planner.New(fakeCompleter{}, 0.7, logger)
	reg := tool.NewRegistry()
	tool.RegisterBuiltins(reg)
	ag := agent.New(agent.Config{Name: "t", MaxSteps: 5}, fakeCompleter{}, mem, pl, reg, logger)

	st := newFakeStore()
	sink := &fakeSink{}
	return New(ag, st, sink, 4, logger), st, sink
}

func waitFinished(t *testing.T, st *fakeStore, id string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-st.done:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("run %s never finished", id)
		}
	}
}

func TestRunnerExecutesJob(t *testing.T) {
	r, st, sink := newTestRunner(t)
	r.Start()
	defer r.Stop()

	if err := r.Submit(Job{RunID: "run-1", Goal: "what is six times seven?"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFinished(t, st, "run-1")

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.finished["run-1"] != "done" {
		t.Errorf("status = %q, want done", st.finished["run-1"])
	}
	if st.response["run-1"] != "forty-two" {
		t.Errorf("response = %q", st.response["run-1"])
	}
	if len(st.running) != 1 || st.running[0] != "run-1" {
		t.Errorf("running transitions = %v", st.running)
	}

	types := sink.types()
	want := []string{events.EventStarted, events.EventPlanned, events.EventStep, events.EventFinished}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestRunnerProcessesJobsInOrder(t *testing.T) {
	r, st, _ := newTestRunner(t)
	r.Start()
	defer r.Stop()

	for _, id := range []string{"a", "b", "c"} {
		if err := r.Submit(Job{RunID: id, Goal: "g"}); err != nil {
			t.Fatalf("Submit %s: %v", id, err)
		}
	}
	for _, id := range []string{"a", "b", "c"} {
		waitFinished(t, st, id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, id := range []string{"a", "b", "c"} {
		if st.finished[id] != "done" {
			t.Errorf("run %s status = %q", id, st.finished[id])
		}
	}
}

// orderLog interleaves completion calls and published events so tests can
// assert that progress reaches the sink during the run.
type orderLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *orderLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *orderLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// loggedCompleter drives a calculator-then-explain run while recording
// every completion call in the shared log.
type loggedCompleter struct{ log *orderLog }

func (c *loggedCompleter) Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error) {
	c.log.add("llm")
	system := messages[0].Content
	switch {
	case strings.Contains(system, "task planning expert"):
		return "1. Compute the product\n2. Explain it", nil
	case strings.Contains(system, "explains results"):
		return "the product is 56088", nil
	default:
		return `{"thought": "multiply", "action": "calculator", "action_input": "123*456"}`, nil
	}
}

type loggedSink struct{ log *orderLog }

func (s *loggedSink) Publish(ctx context.Context, ev *events.RunEvent) error {
	s.log.add("event:" + ev.Type)
	return nil
}

func TestRunnerPublishesStepEventsDuringRun(t *testing.T) {
	log := &orderLog{}
	logger := zap.NewNop()
	mem := memory.NewStore(&memIndex{}, logger)
	completer := &loggedCompleter{log: log}
	pl := planner.New(completer, 0.7, logger)
	reg := tool.NewRegistry()
	tool.RegisterBuiltins(reg)
	ag := agent.New(agent.Config{Name: "t", MaxSteps: 5}, completer, mem, pl, reg, logger)

	st := newFakeStore()
	r := New(ag, st, &loggedSink{log: log}, 4, logger)
	r.Start()
	defer r.Stop()

	if err := r.Submit(Job{RunID: "live", Goal: "multiply the numbers"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFinished(t, st, "live")

	entries := log.snapshot()
	firstStep, lastLLM := -1, -1
	for i, e := range entries {
		if e == "event:"+events.EventStep && firstStep == -1 {
			firstStep = i
		}
		if e == "llm" {
			lastLLM = i
		}
	}
	if firstStep == -1 || lastLLM == -1 {
		t.Fatalf("log missing step event or completion call: %v", entries)
	}
	// The calculator step's event must go out before the explanation
	// completion is even requested; a post-run replay would place every
	// step event after the last completion.
	if firstStep > lastLLM {
		t.Errorf("first step event at %d, after last completion at %d: %v", firstStep, lastLLM, entries)
	}
}

func TestRunnerQueueFull(t *testing.T) {
	r, _, _ := newTestRunner(t)
	// Not started: the queue only drains when the worker runs.
	for i := 0; i < 4; i++ {
		if err := r.Submit(Job{RunID: "x", Goal: "g"}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := r.Submit(Job{RunID: "overflow", Goal: "g"}); err == nil {
		t.Fatal("Submit on full queue succeeded")
	}
}
