package runtime

import (
	"log"
	"sync"
	"time"
)

// refreshInterval is the period of the low-frequency loop that refreshes
// timing-derived values and pushes parameter updates to the backend.
const refreshInterval = 100 * time.Millisecond

// tickInterval is how often the frame loop samples the clock. It only
// bounds scheduling latency; the actual render rate comes from the
// accumulator in Step.
const tickInterval = 2 * time.Millisecond

// Scheduler drives one backend through the shared lifecycle:
// initialize, then a fixed-step frame loop plus a 10 Hz refresh loop,
// until Stop. The frame loop accumulates elapsed wall time and executes
// one render step per whole frame interval, carrying the remainder, so
// a long stall replays the missed steps instead of dropping them.
type Scheduler struct {
	backend Backend
	env     *Env

	// advanceFrame marks the one scheduler per coordinator that owns
	// the shared frame counter.
	advanceFrame bool

	mu      sync.Mutex
	running bool
	acc     time.Duration
	last    time.Time
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler(backend Backend, env *Env, advanceFrame bool) *Scheduler {
	return &Scheduler{backend: backend, env: env, advanceFrame: advanceFrame}
}

// Start initializes the backend and launches both loops. Starting a
// running scheduler is a no-op. If Initialize fails no goroutines are
// launched and the scheduler stays stopped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.backend.Initialize(); err != nil {
		return &BackendInitError{Backend: s.backend.Name(), Phase: "initialize", Err: err}
	}
	s.running = true
	s.acc = 0
	s.last = time.Now()
	s.stop = make(chan struct{})
	s.wg.Add(2)
	go s.frameLoop()
	go s.refreshLoop()
	return nil
}

// Stop halts both loops, waits for any in-flight render step to finish,
// and releases the backend. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
	s.backend.Cleanup()
}

// Running reports whether the loops are live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) frameLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

func (s *Scheduler) refreshLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.refresh()
		}
	}
}

// Step advances the accumulator to now and executes one render step per
// whole frame interval accrued, returning how many steps ran. The
// sub-interval remainder stays in the accumulator for the next call.
func (s *Scheduler) Step(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	s.acc += now.Sub(s.last)
	s.last = now
	fps := s.env.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	interval := time.Duration(float64(time.Second) / fps)
	steps := 0
	for s.acc >= interval {
		if err := s.backend.Render(); err != nil {
			log.Printf("runtime: %s render: %v", s.backend.Name(), err)
		}
		if s.advanceFrame {
			s.env.AdvanceFrame()
		}
		s.acc -= interval
		steps++
	}
	return steps
}

func (s *Scheduler) refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.advanceFrame {
		s.env.SyncCounters()
	}
	for name, value := range s.env.Parameters {
		s.backend.OnParameterUpdate(name, value)
	}
	s.backend.OnTimingUpdate()
}
