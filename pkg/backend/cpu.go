package backend

import (
	"context"
	"sync"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

// cpuGridMax caps the CPU rasterization grid. The CPU path interprets
// the AST per pixel, so it renders a downscaled framebuffer and leaves
// upscaling to the host.
const cpuGridMax = 160

// CPU is the interpreter backend. It always serves the compute context
// and doubles as the visual fallback when no GPU is available.
type CPU struct {
	mu      sync.Mutex
	ev      *Evaluator
	env     *runtime.Env
	serving []graph.Context
	gridW   int
	gridH   int
	pix     []byte
	results map[string]float64
}

func NewCPU() *CPU {
	return &CPU{serving: []graph.Context{graph.Compute}}
}

func (c *CPU) Name() string { return "cpu" }

func (c *CPU) Contexts() []graph.Context {
	return []graph.Context{graph.Visual, graph.Compute}
}

// AssignContexts narrows which contexts this backend actually renders
// for the current program. Called by the coordinator before Compile.
func (c *CPU) AssignContexts(ctxs []graph.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serving = append([]graph.Context(nil), ctxs...)
}

func (c *CPU) Initialize() error { return nil }

// Compile builds a fresh evaluator and probes each served context once,
// so evaluation errors surface at compile time rather than mid-frame.
func (c *CPU) Compile(ctx context.Context, prog *lang.Program, env *runtime.Env) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := graph.Build(prog)
	if err != nil {
		return err
	}
	ev := NewEvaluator(prog, g, env)

	gridW, gridH := visualGrid(env)
	var pix []byte
	for _, served := range c.servedContexts() {
		switch served {
		case graph.Visual:
			pix = make([]byte, gridW*gridH*4)
			probe := make([]byte, 4)
			if err := ev.RenderVisual(probe, 1, 1); err != nil {
				return err
			}
		case graph.Compute:
			if _, err := ev.EvalCompute(); err != nil {
				return err
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ev = ev
	c.env = env
	c.gridW, c.gridH = gridW, gridH
	c.pix = pix
	c.results = nil
	return nil
}

func (c *CPU) servedContexts() []graph.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]graph.Context(nil), c.serving...)
}

func (c *CPU) Render() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ev == nil {
		return nil
	}
	for _, served := range c.serving {
		switch served {
		case graph.Visual:
			if c.pix == nil {
				c.pix = make([]byte, c.gridW*c.gridH*4)
			}
			if err := c.ev.RenderVisual(c.pix, c.gridW, c.gridH); err != nil {
				return err
			}
		case graph.Compute:
			results, err := c.ev.EvalCompute()
			if err != nil {
				return err
			}
			c.results = results
		}
	}
	return nil
}

// Framebuffer returns the last rendered RGBA grid and its dimensions,
// or nil when this backend is not serving the visual context.
func (c *CPU) Framebuffer() ([]byte, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pix == nil {
		return nil, 0, 0
	}
	out := make([]byte, len(c.pix))
	copy(out, c.pix)
	return out, c.gridW, c.gridH
}

// Results returns a copy of the latest compute outputs.
func (c *CPU) Results() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

func (c *CPU) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ev = nil
	c.pix = nil
	c.results = nil
}

func (c *CPU) OnParameterUpdate(name string, value float64) {}

func (c *CPU) OnTimingUpdate() {}

func visualGrid(env *runtime.Env) (int, int) {
	return scaledGrid(env, cpuGridMax)
}

// scaledGrid picks a rasterization grid: the output resolution capped
// at max on the long edge, aspect preserved.
func scaledGrid(env *runtime.Env, max int) (int, int) {
	w, h := env.ResW, env.ResH
	if w <= 0 || h <= 0 {
		return max, max * 9 / 16
	}
	long := w
	if h > long {
		long = h
	}
	if long <= max {
		return w, h
	}
	scale := float64(max) / float64(long)
	gw := int(float64(w) * scale)
	gh := int(float64(h) * scale)
	if gw < 1 {
		gw = 1
	}
	if gh < 1 {
		gh = 1
	}
	return gw, gh
}
