package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
)

// Coordinator owns the compiled program and fans work out to the
// backends. A compile stops any running schedulers, rebuilds the
// dependency graph, compiles every active backend concurrently, and
// restarts. Hosts consume it one of two ways: Start launches the
// self-clocked schedulers (headless run), or the host drives its own
// loop and calls Render once per tick. Not both.
type Coordinator struct {
	env *Env

	cpu   Backend
	gpu   Backend // nil when no GPU surface is available
	audio Backend // nil when no audio device is available

	prog       *lang.Program
	graph      *graph.Graph
	active     map[graph.Context]Backend
	schedulers map[string]*Scheduler
	audioLive  bool
	running    bool
	hosted     bool
}

// NewCoordinator wires the coordinator to its backends. cpu is
// mandatory; gpu and audio may be nil and their contexts then fall back
// to the cpu backend or are skipped.
func NewCoordinator(env *Env, cpu, gpu, audio Backend) *Coordinator {
	return &Coordinator{
		env:   env,
		cpu:   cpu,
		gpu:   gpu,
		audio: audio,
	}
}

func (c *Coordinator) Env() *Env { return c.env }

func (c *Coordinator) Program() *lang.Program { return c.prog }

func (c *Coordinator) Graph() *graph.Graph { return c.graph }

// Snapshot returns the diagnostic view of the compiled graph, or false
// when no program has been compiled.
func (c *Coordinator) Snapshot() (graph.GraphData, bool) {
	if c.graph == nil {
		return graph.GraphData{}, false
	}
	return c.graph.Snapshot(), true
}

// Compile replaces the current program. The new program is validated
// before anything running is touched, so a graph error during a live
// edit leaves the previous program playing. Schedulers stop only for
// the backend compiles; if those fail, the previous program is
// recompiled and restarted. If the coordinator was running, or the new
// program sets autorun, it starts again after the swap.
func (c *Coordinator) Compile(ctx context.Context, prog *lang.Program) error {
	g, err := graph.Build(prog)
	if err != nil {
		return err
	}
	active, err := c.selectBackends(graph.ActiveContexts(prog))
	if err != nil {
		return err
	}

	wasRunning := c.running
	c.stopSchedulers()
	c.env.Apply(prog)
	assignContexts(active)

	eg, egCtx := errgroup.WithContext(ctx)
	for _, b := range uniqueBackends(active) {
		b := b
		eg.Go(func() error {
			if err := b.Compile(egCtx, prog, c.env); err != nil {
				return &BackendCompileError{Backend: b.Name(), Err: err}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		c.restorePrevious(wasRunning)
		return err
	}

	c.prog = prog
	c.graph = g
	c.active = active

	if wasRunning || c.env.Autorun {
		if c.hosted {
			return c.StartHosted()
		}
		return c.Start()
	}
	return nil
}

// restorePrevious recompiles and restarts the program that was loaded
// before a failed Compile. Backends may hold a mix of old and new state
// after a partial compile, so every active backend recompiles from the
// previous program.
func (c *Coordinator) restorePrevious(restart bool) {
	if c.prog == nil {
		return
	}
	c.env.Apply(c.prog)
	assignContexts(c.active)
	for _, b := range uniqueBackends(c.active) {
		if err := b.Compile(context.Background(), c.prog, c.env); err != nil {
			log.Printf("runtime: restoring previous program on %s: %v", b.Name(), err)
			return
		}
	}
	if !restart {
		return
	}
	var err error
	if c.hosted {
		err = c.StartHosted()
	} else {
		err = c.Start()
	}
	if err != nil {
		log.Printf("runtime: restarting previous program: %v", err)
	}
}

// SetHosted switches the coordinator to host-driven mode: starting it
// prepares the session but launches no schedulers, and the host calls
// Render once per tick of its own loop.
func (c *Coordinator) SetHosted(hosted bool) { c.hosted = hosted }

// StartHosted resets the clock and brings up the audio backend, leaving
// the frame loop to the host.
func (c *Coordinator) StartHosted() error {
	if c.running {
		return nil
	}
	if c.graph == nil {
		return errors.New("runtime: no compiled program")
	}
	c.env.Start()
	for _, b := range c.frameBackends() {
		if err := b.Initialize(); err != nil {
			if b == c.gpu && c.cpu != nil {
				log.Printf("runtime: %s backend failed to initialize: %v, falling back to cpu for visual", b.Name(), err)
				c.active[graph.Visual] = c.cpu
				assignContexts(c.active)
				if cerr := c.cpu.Compile(context.Background(), c.prog, c.env); cerr != nil {
					return &BackendCompileError{Backend: c.cpu.Name(), Err: cerr}
				}
				if ierr := c.cpu.Initialize(); ierr != nil {
					return &BackendInitError{Backend: c.cpu.Name(), Phase: "initialize", Err: ierr}
				}
				continue
			}
			return &BackendInitError{Backend: b.Name(), Phase: "initialize", Err: err}
		}
	}
	if a := c.active[graph.Audio]; a != nil {
		if err := a.Initialize(); err != nil {
			return &BackendInitError{Backend: a.Name(), Phase: "initialize", Err: err}
		}
		c.audioLive = true
	}
	c.hosted = true
	c.running = true
	return nil
}

func (c *Coordinator) selectBackends(contexts graph.ContextSet) (map[graph.Context]Backend, error) {
	active := make(map[graph.Context]Backend)
	if contexts.Has(graph.Visual) {
		if c.gpu != nil {
			active[graph.Visual] = c.gpu
		} else {
			active[graph.Visual] = c.cpu
		}
	}
	if contexts.Has(graph.Compute) {
		active[graph.Compute] = c.cpu
	}
	if contexts.Has(graph.Audio) {
		if c.audio == nil {
			log.Printf("runtime: program has audio output but no audio backend, skipping")
		} else {
			active[graph.Audio] = c.audio
		}
	}
	if len(active) == 0 {
		return nil, errors.New("runtime: program produces no output")
	}
	return active, nil
}

// Start launches a scheduler per active frame-driven backend and brings
// up the audio backend on its own clock. The first scheduler started
// owns the shared frame counter. A GPU that fails to initialize demotes
// the visual context to the cpu backend.
func (c *Coordinator) Start() error {
	if c.running {
		return nil
	}
	if c.graph == nil {
		return errors.New("runtime: no compiled program")
	}
	c.env.Start()

	order := c.frameBackends()
	started := make(map[string]*Scheduler)
	for i := 0; i < len(order); i++ {
		b := order[i]
		if _, ok := started[b.Name()]; ok {
			continue
		}
		sched := NewScheduler(b, c.env, len(started) == 0)
		if err := sched.Start(); err != nil {
			if b == c.gpu && c.cpu != nil {
				log.Printf("runtime: %v, falling back to cpu for visual", err)
				c.active[graph.Visual] = c.cpu
				assignContexts(c.active)
				if cerr := c.cpu.Compile(context.Background(), c.prog, c.env); cerr != nil {
					stopAll(started)
					return &BackendCompileError{Backend: c.cpu.Name(), Err: cerr}
				}
				order[i] = c.cpu
				i--
				continue
			}
			stopAll(started)
			return err
		}
		started[b.Name()] = sched
	}

	if a := c.active[graph.Audio]; a != nil {
		if err := a.Initialize(); err != nil {
			stopAll(started)
			return &BackendInitError{Backend: a.Name(), Phase: "initialize", Err: err}
		}
		c.audioLive = true
	}

	c.schedulers = started
	c.running = true
	return nil
}

// frameBackends returns the backends that need a frame scheduler,
// visual first so it claims the frame counter.
func (c *Coordinator) frameBackends() []Backend {
	var order []Backend
	if b := c.active[graph.Visual]; b != nil {
		order = append(order, b)
	}
	if b := c.active[graph.Compute]; b != nil {
		order = append(order, b)
	}
	return order
}

// Render executes one frame on the visual-preferred backend and
// advances the frame counter. For hosts that own the tick loop; do not
// mix with Start. Render errors are recoverable and logged.
func (c *Coordinator) Render() error {
	b := c.active[graph.Visual]
	if b == nil {
		b = c.active[graph.Compute]
	}
	if b == nil {
		return nil
	}
	err := b.Render()
	if err != nil {
		log.Printf("runtime: %s render: %v", b.Name(), err)
	}
	c.env.AdvanceFrame()
	return err
}

// Stop halts the schedulers and the audio backend, keeping the compiled
// program so Start can resume. Idempotent.
func (c *Coordinator) Stop() {
	c.stopSchedulers()
}

// Cleanup stops everything and releases all backends. Idempotent; the
// coordinator must be recompiled before further use.
func (c *Coordinator) Cleanup() {
	c.stopSchedulers()
	for _, b := range []Backend{c.cpu, c.gpu, c.audio} {
		if b != nil {
			b.Cleanup()
		}
	}
	c.prog = nil
	c.graph = nil
	c.active = nil
}

func (c *Coordinator) stopSchedulers() {
	stopAll(c.schedulers)
	c.schedulers = nil
	if c.audioLive {
		c.audio.Cleanup()
		c.audioLive = false
	}
	c.running = false
}

func stopAll(scheds map[string]*Scheduler) {
	for _, s := range scheds {
		s.Stop()
	}
}

// assignContexts tells each multi-context backend which contexts it is
// actually serving for this program.
func assignContexts(active map[graph.Context]Backend) {
	byName := make(map[string][]graph.Context)
	for _, ctx := range []graph.Context{graph.Visual, graph.Audio, graph.Compute} {
		if b := active[ctx]; b != nil {
			byName[b.Name()] = append(byName[b.Name()], ctx)
		}
	}
	for _, b := range uniqueBackends(active) {
		if assigner, ok := b.(ContextAssigner); ok {
			assigner.AssignContexts(byName[b.Name()])
		}
	}
}

func uniqueBackends(active map[graph.Context]Backend) []Backend {
	seen := make(map[string]bool)
	var out []Backend
	for _, ctx := range []graph.Context{graph.Visual, graph.Audio, graph.Compute} {
		b := active[ctx]
		if b == nil || seen[b.Name()] {
			continue
		}
		seen[b.Name()] = true
		out = append(out, b)
	}
	return out
}

// Running reports whether any scheduler or the audio backend is live.
func (c *Coordinator) Running() bool { return c.running }

// CheckProgram parses and graph-checks source without touching the
// backends. Used by the check and graph CLI subcommands.
func CheckProgram(src string) (*graph.Graph, error) {
	prog, err := lang.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	g, err := graph.Build(prog)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}
	return g, nil
}
