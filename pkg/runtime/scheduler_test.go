package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
)

// fakeBackend counts lifecycle calls and can be told to fail.
type fakeBackend struct {
	name     string
	contexts []graph.Context

	mu             sync.Mutex
	initErr        error
	compileErr     error
	compileErrOnce error // consumed by the next Compile call
	renderErr      error
	inits          int
	compiles       int
	renders        int
	cleanups       int
	assigned       []graph.Context
	params         map[string]float64
}

func newFakeBackend(name string, contexts ...graph.Context) *fakeBackend {
	return &fakeBackend{name: name, contexts: contexts, params: make(map[string]float64)}
}

func (f *fakeBackend) Name() string              { return f.name }
func (f *fakeBackend) Contexts() []graph.Context { return f.contexts }

func (f *fakeBackend) Initialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return f.initErr
	}
	f.inits++
	return nil
}

func (f *fakeBackend) Compile(ctx context.Context, prog *lang.Program, env *Env) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compileErrOnce != nil {
		err := f.compileErrOnce
		f.compileErrOnce = nil
		return err
	}
	if f.compileErr != nil {
		return f.compileErr
	}
	f.compiles++
	return nil
}

func (f *fakeBackend) Render() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.renders++
	return f.renderErr
}

func (f *fakeBackend) Cleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
}

func (f *fakeBackend) OnParameterUpdate(name string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params[name] = value
}

func (f *fakeBackend) OnTimingUpdate() {}

func (f *fakeBackend) AssignContexts(ctxs []graph.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append([]graph.Context(nil), ctxs...)
}

func (f *fakeBackend) counts() (inits, compiles, renders, cleanups int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inits, f.compiles, f.renders, f.cleanups
}

func TestStepFixedRate(t *testing.T) {
	env := NewEnv(640, 480)
	env.TargetFPS = 30
	fb := newFakeBackend("cpu", graph.Compute)
	s := NewScheduler(fb, env, true)

	t0 := time.Now()
	s.running = true
	s.last = t0

	// 500ms at 30fps is exactly 15 whole frame intervals.
	if steps := s.Step(t0.Add(500 * time.Millisecond)); steps != 15 {
		t.Fatalf("got %d steps, want 15", steps)
	}
	if _, _, renders, _ := fb.counts(); renders != 15 {
		t.Errorf("backend rendered %d times, want 15", renders)
	}
	if env.AbsFrame != 15 {
		t.Errorf("frame counter = %d, want 15", env.AbsFrame)
	}
}

func TestStepCarriesRemainder(t *testing.T) {
	env := NewEnv(640, 480)
	env.TargetFPS = 30 // interval ~33.33ms
	fb := newFakeBackend("cpu", graph.Compute)
	s := NewScheduler(fb, env, true)

	t0 := time.Now()
	s.running = true
	s.last = t0

	// 28ms accrues no whole interval.
	if steps := s.Step(t0.Add(28 * time.Millisecond)); steps != 0 {
		t.Fatalf("got %d steps for 28ms, want 0", steps)
	}
	// A further 6ms pushes the accumulator past one interval.
	if steps := s.Step(t0.Add(34 * time.Millisecond)); steps != 1 {
		t.Fatalf("got %d steps for 34ms total, want 1", steps)
	}
}

func TestStepReplaysStall(t *testing.T) {
	env := NewEnv(640, 480)
	env.TargetFPS = 60
	fb := newFakeBackend("cpu", graph.Compute)
	s := NewScheduler(fb, env, true)

	t0 := time.Now()
	s.running = true
	s.last = t0

	// A one second stall replays all 60 missed steps.
	if steps := s.Step(t0.Add(time.Second)); steps != 60 {
		t.Fatalf("got %d steps after a 1s stall, want 60", steps)
	}
}

func TestStepOnlyDesignatedAdvancesFrames(t *testing.T) {
	env := NewEnv(640, 480)
	env.TargetFPS = 30
	fb := newFakeBackend("cpu", graph.Compute)
	s := NewScheduler(fb, env, false)

	t0 := time.Now()
	s.running = true
	s.last = t0

	s.Step(t0.Add(500 * time.Millisecond))
	if env.AbsFrame != 0 {
		t.Errorf("non-designated scheduler advanced the frame counter to %d", env.AbsFrame)
	}
}

func TestStepContinuesPastRenderError(t *testing.T) {
	env := NewEnv(640, 480)
	env.TargetFPS = 30
	fb := newFakeBackend("cpu", graph.Compute)
	fb.renderErr = errors.New("boom")
	s := NewScheduler(fb, env, true)

	t0 := time.Now()
	s.running = true
	s.last = t0

	if steps := s.Step(t0.Add(100 * time.Millisecond)); steps != 3 {
		t.Fatalf("got %d steps, want 3 despite render errors", steps)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	env := NewEnv(640, 480)
	fb := newFakeBackend("cpu", graph.Compute)
	s := NewScheduler(fb, env, true)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !s.Running() {
		t.Fatal("scheduler should be running")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start should be a no-op, got %v", err)
	}

	s.Stop()
	if s.Running() {
		t.Fatal("scheduler should be stopped")
	}
	s.Stop() // idempotent

	inits, _, _, cleanups := fb.counts()
	if inits != 1 {
		t.Errorf("initialized %d times, want 1", inits)
	}
	if cleanups != 1 {
		t.Errorf("cleaned up %d times, want 1", cleanups)
	}
}

func TestSchedulerInitFailure(t *testing.T) {
	env := NewEnv(640, 480)
	fb := newFakeBackend("gpu", graph.Visual)
	fb.initErr = errors.New("no device")
	s := NewScheduler(fb, env, true)

	err := s.Start()
	var initErr *BackendInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("got %T, want *BackendInitError", err)
	}
	if initErr.Backend != "gpu" {
		t.Errorf("backend = %q, want gpu", initErr.Backend)
	}
	if s.Running() {
		t.Error("scheduler must stay stopped after a failed Start")
	}
}
