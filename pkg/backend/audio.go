package backend

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
	"goweft/pkg/runtime"
)

// Audio synthesizes the program's audio output through the platform
// sound device. It is not frame-scheduled: the device pulls samples
// through an infinite stream at its own rate, so there is no Render
// work to do.
type Audio struct {
	mu     sync.Mutex
	ev     *Evaluator
	env    *runtime.Env
	ctx    *audio.Context
	player *audio.Player
	rate   int
}

func NewAudio() *Audio { return &Audio{} }

func (a *Audio) Name() string { return "audio" }

func (a *Audio) Contexts() []graph.Context {
	return []graph.Context{graph.Audio}
}

func (a *Audio) Compile(ctx context.Context, prog *lang.Program, env *runtime.Env) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g, err := graph.Build(prog)
	if err != nil {
		return err
	}
	ev := NewEvaluator(prog, g, env)
	if _, _, err := ev.SampleAt(0); err != nil {
		return err
	}
	a.mu.Lock()
	a.ev = ev
	a.env = env
	a.mu.Unlock()
	return nil
}

// Initialize opens the audio device and starts the stream. The audio
// context is process-global and survives Cleanup; only the player is
// per-program.
func (a *Audio) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player != nil {
		return nil
	}
	rate := 48000
	if a.env != nil && a.env.SampleRate > 0 {
		rate = int(a.env.SampleRate)
	}
	if a.ctx == nil {
		if cur := audio.CurrentContext(); cur != nil {
			a.ctx = cur
		} else {
			a.ctx = audio.NewContext(rate)
		}
	}
	a.rate = a.ctx.SampleRate()

	player, err := a.ctx.NewPlayer(&pcmStream{backend: a})
	if err != nil {
		return fmt.Errorf("open audio player: %w", err)
	}
	a.player = player
	player.Play()
	return nil
}

func (a *Audio) Render() error { return nil }

func (a *Audio) Cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.player != nil {
		if err := a.player.Close(); err != nil {
			log.Printf("backend: close audio player: %v", err)
		}
		a.player = nil
	}
	a.ev = nil
}

func (a *Audio) OnParameterUpdate(name string, value float64) {}

func (a *Audio) OnTimingUpdate() {}

// pcmStream feeds the device: 16-bit little-endian stereo frames pulled
// from the evaluator, silence when no program is loaded or a sample
// fails to evaluate.
type pcmStream struct {
	backend *Audio
	n       uint64
}

func (s *pcmStream) Read(p []byte) (int, error) {
	s.backend.mu.Lock()
	ev := s.backend.ev
	s.backend.mu.Unlock()

	frames := len(p) / 4
	for i := 0; i < frames; i++ {
		var left, right float64
		if ev != nil {
			var err error
			left, right, err = ev.SampleAt(s.n)
			if err != nil {
				left, right = 0, 0
			}
		}
		writeSample(p[i*4:], left)
		writeSample(p[i*4+2:], right)
		s.n++
	}
	return frames * 4, nil
}

func writeSample(p []byte, v float64) {
	s := int16(v * 32767)
	p[0] = byte(s)
	p[1] = byte(s >> 8)
}
