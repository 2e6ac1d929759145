package backend

import (
	"context"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

// gpuGridMax caps the GPU backend's evaluation grid. The field is
// evaluated on the CPU into a texture and scaled to the window on the
// GPU, which keeps per-frame cost independent of window size.
const gpuGridMax = 320

// GPU is the windowed visual backend. Evaluation happens outside the
// ebiten draw callback; Draw only uploads the latest grid and scales
// it to the screen.
type GPU struct {
	mu    sync.Mutex
	ev    *Evaluator
	env   *runtime.Env
	gridW int
	gridH int
	pix   []byte
	img   *ebiten.Image
}

func NewGPU() *GPU { return &GPU{} }

func (g *GPU) Name() string { return "gpu" }

func (g *GPU) Contexts() []graph.Context {
	return []graph.Context{graph.Visual}
}

func (g *GPU) Initialize() error { return nil }

func (g *GPU) Compile(ctx context.Context, prog *lang.Program, env *runtime.Env) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dg, err := graph.Build(prog)
	if err != nil {
		return err
	}
	ev := NewEvaluator(prog, dg, env)
	probe := make([]byte, 4)
	if err := ev.RenderVisual(probe, 1, 1); err != nil {
		return err
	}

	gridW, gridH := gpuGrid(env)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ev = ev
	g.env = env
	if gridW != g.gridW || gridH != g.gridH {
		g.gridW, g.gridH = gridW, gridH
		g.pix = make([]byte, gridW*gridH*4)
		if g.img != nil {
			g.img.Deallocate()
			g.img = nil
		}
	}
	return nil
}

func (g *GPU) Render() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ev == nil {
		return nil
	}
	return g.ev.RenderVisual(g.pix, g.gridW, g.gridH)
}

// Draw uploads the evaluated grid and scales it to the screen. Must be
// called from the ebiten draw callback.
func (g *GPU) Draw(screen *ebiten.Image) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pix == nil {
		return
	}
	if g.img == nil {
		g.img = ebiten.NewImage(g.gridW, g.gridH)
	}
	g.img.WritePixels(g.pix)

	bounds := screen.Bounds()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(
		float64(bounds.Dx())/float64(g.gridW),
		float64(bounds.Dy())/float64(g.gridH),
	)
	if g.env != nil && g.env.Interpolate {
		op.Filter = ebiten.FilterLinear
	}
	screen.DrawImage(g.img, op)
}

func (g *GPU) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ev = nil
	g.pix = nil
	if g.img != nil {
		g.img.Deallocate()
		g.img = nil
	}
}

func (g *GPU) OnParameterUpdate(name string, value float64) {}

func (g *GPU) OnTimingUpdate() {}

func gpuGrid(env *runtime.Env) (int, int) {
	return scaledGrid(env, gpuGridMax)
}
