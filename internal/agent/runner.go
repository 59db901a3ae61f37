package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fleetops/internal/model"
)

// Runner drives the engine in a background goroutine. Cycles never overlap;
// a stop request takes effect between cycles, letting the in-flight cycle
// finish.
type Runner struct {
	engine   *Engine
	interval time.Duration
	lg       *slog.Logger

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	lastState *model.AgentState
	lastRun   Outcome
}

func NewRunner(engine *Engine, interval time.Duration, lg *slog.Logger) *Runner {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Runner{engine: engine, interval: interval, lg: lg}
}

// Start launches the loop. Starting an already-running loop is a no-op.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(ctx, r.stopCh, r.doneCh)
	return true
}

// Stop signals the loop and waits for the current cycle to complete.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	stop, done := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stop)
	<-done
	return true
}

func (r *Runner) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(done)
	}()

	// The limiter paces cycles at one per interval with no initial delay.
	limiter := rate.NewLimiter(rate.Every(r.interval), 1)
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		state, outcome := r.engine.RunCycle(ctx)
		r.mu.Lock()
		r.lastState = &state
		r.lastRun = outcome
		r.mu.Unlock()

		switch outcome {
		case OutcomeContinue:
			// next wait, then observe again
		case OutcomeHuman:
			r.lg.Info("loop paused for human approval", "cycle", state.CycleID)
			return
		default:
			r.lg.Info("loop stopped", "cycle", state.CycleID, "outcome", outcome)
			return
		}
	}
}

// Status reports whether the loop runs plus the last completed cycle.
type Status struct {
	Running     bool              `json:"running"`
	LastOutcome Outcome           `json:"lastOutcome,omitempty"`
	LastCycle   *model.AgentState `json:"lastCycle,omitempty"`
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Running: r.running, LastOutcome: r.lastRun, LastCycle: r.lastState}
}

// RunOnce executes a single cycle synchronously, independent of the
// background loop.
func (r *Runner) RunOnce(ctx context.Context) (model.AgentState, Outcome) {
	state, outcome := r.engine.RunCycle(ctx)
	r.mu.Lock()
	r.lastState = &state
	r.lastRun = outcome
	r.mu.Unlock()
	return state, outcome
}
