package runtime

import (
	"context"

	"goweft/pkg/graph"
	"goweft/pkg/lang"
)

// Backend renders one or more execution contexts of a compiled program.
// Implementations must tolerate Compile being called again after a
// successful compile (hot recompile) and Cleanup being called more than
// once.
type Backend interface {
	// Name identifies the backend in logs and errors ("cpu", "gpu", "audio").
	Name() string

	// Contexts reports which execution contexts this backend can serve.
	Contexts() []graph.Context

	// Initialize acquires the backend's resources (window, device,
	// audio output). Called once before the first Render.
	Initialize() error

	// Compile translates the program into the backend's executable form.
	// Safe to call concurrently with other backends' Compile, never
	// concurrently with this backend's Render.
	Compile(ctx context.Context, prog *lang.Program, env *Env) error

	// Render executes one frame. A returned error is recoverable: the
	// scheduler logs it and keeps ticking.
	Render() error

	// Cleanup releases resources. Idempotent.
	Cleanup()

	// OnParameterUpdate delivers a changed UI parameter binding.
	OnParameterUpdate(name string, value float64)

	// OnTimingUpdate signals that timing-derived Env fields were refreshed.
	OnTimingUpdate()
}

// ContextAssigner is implemented by backends that can serve several
// contexts and need to know which ones the coordinator routed to them.
// Called before Compile.
type ContextAssigner interface {
	AssignContexts([]graph.Context)
}
