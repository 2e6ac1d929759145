package main

import (
	"context"
	"fmt"
	"image/color"
	"log"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"goweft/pkg/backend"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

// reloadPollInterval is how often the source file's mtime is checked
// for live reload.
const reloadPollInterval = 500 * time.Millisecond

type Game struct {
	coord *runtime.Coordinator
	env   *runtime.Env
	cpu   *backend.CPU
	gpu   *backend.GPU

	path     string
	modTime  time.Time
	nextPoll time.Time

	cpuImg  *ebiten.Image // reused canvas for the cpu fallback path
	paused  bool
	showHUD bool
	lastErr string
}

func (g *Game) Update() error {
	mx, my := ebiten.CursorPosition()
	if g.env.ResW > 0 && g.env.ResH > 0 {
		g.env.Pointer.X = clamp01(float64(mx) / float64(g.env.ResW))
		g.env.Pointer.Y = clamp01(float64(my) / float64(g.env.ResH))
	}

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyTab) {
		g.showHUD = !g.showHUD
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.reload(true)
	}
	if now := time.Now(); now.After(g.nextPoll) {
		g.nextPoll = now.Add(reloadPollInterval)
		g.reload(false)
	}

	if !g.paused {
		g.coord.Render()
	}
	return nil
}

// reload recompiles the source file when it changed on disk, or
// unconditionally when forced. A failed compile keeps the previous
// program running and surfaces the error on the HUD.
func (g *Game) reload(force bool) {
	info, err := os.Stat(g.path)
	if err != nil {
		g.lastErr = err.Error()
		return
	}
	if !force && info.ModTime().Equal(g.modTime) {
		return
	}
	g.modTime = info.ModTime()

	src, err := os.ReadFile(g.path)
	if err != nil {
		g.lastErr = err.Error()
		return
	}
	prog, err := lang.Parse(string(src))
	if err != nil {
		g.lastErr = err.Error()
		return
	}
	if err := g.coord.Compile(context.Background(), prog); err != nil {
		g.lastErr = err.Error()
		return
	}
	if err := g.coord.StartHosted(); err != nil {
		g.lastErr = err.Error()
		return
	}
	g.lastErr = ""
	// The program may have changed me<fps>; the host tick rate follows.
	ebiten.SetTPS(int(g.env.TargetFPS))
	log.Printf("compiled %s: %d nodes", g.path, g.coord.Graph().Len())
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.gpu.Draw(screen)
	g.drawCPUFallback(screen)

	if g.showHUD {
		status := "running"
		if g.paused {
			status = "paused"
		}
		g.hudLine(screen, fmt.Sprintf("%s  %s", g.path, status), 14)
		g.hudLine(screen,
			fmt.Sprintf("frame %d  t=%.2fs  fps %.1f", g.env.AbsFrame, g.env.AbsTime(), ebiten.ActualFPS()), 28)
		if g.lastErr != "" {
			g.hudLine(screen, g.lastErr, 42)
		}
	}
}

func (g *Game) hudLine(screen *ebiten.Image, msg string, y int) {
	text.Draw(screen, msg, basicfont.Face7x13, 5, y+1, color.Black)
	text.Draw(screen, msg, basicfont.Face7x13, 4, y, color.White)
}

// drawCPUFallback blits the cpu backend's framebuffer when it is the
// one serving the visual context.
func (g *Game) drawCPUFallback(screen *ebiten.Image) {
	pix, w, h := g.cpu.Framebuffer()
	if pix == nil {
		return
	}
	if g.cpuImg == nil || g.cpuImg.Bounds().Dx() != w || g.cpuImg.Bounds().Dy() != h {
		g.cpuImg = ebiten.NewImage(w, h)
	}
	g.cpuImg.WritePixels(pix)

	bounds := screen.Bounds()
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(
		float64(bounds.Dx())/float64(w),
		float64(bounds.Dy())/float64(h),
	)
	if g.env.Interpolate {
		op.Filter = ebiten.FilterLinear
	}
	screen.DrawImage(g.cpuImg, op)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.env.ResW, g.env.ResH
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: desktop <file.weft>")
	}
	path := os.Args[1]

	env := runtime.NewEnv(640, 480)
	cpu := backend.NewCPU()
	gpu := backend.NewGPU()
	coord := runtime.NewCoordinator(env, cpu, gpu, backend.NewAudio())
	coord.SetHosted(true)

	game := &Game{
		coord:   coord,
		env:     env,
		cpu:     cpu,
		gpu:     gpu,
		path:    path,
		showHUD: true,
	}
	game.reload(true)
	if game.lastErr != "" {
		log.Fatalf("desktop: %s", game.lastErr)
	}

	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(env.ResW, env.ResH)
	ebiten.SetWindowTitle("weft " + path)
	ebiten.SetTPS(int(env.TargetFPS))

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
	coord.Cleanup()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
