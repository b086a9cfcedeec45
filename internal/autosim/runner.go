package autosim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/baynet/internal/session"
)

// Runner drives a Simulator against a session on a fixed interval. Ticks are
// applied through the session, so they are serialized with every other
// evidence write and never overlap.
type Runner struct {
	sess   *session.Session
	sim    *Simulator
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// errMu guards lastErr apart from mu, which Stop holds while the loop
	// is still exiting.
	errMu   sync.Mutex
	lastErr error
}

// NewRunner creates a runner. It does not start ticking.
func NewRunner(sess *session.Session, sim *Simulator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{sess: sess, sim: sim, logger: logger}
}

// Start begins ticking until Stop is called, ctx is cancelled, or the session
// stops the simulator itself (reset, scenario load). It reports false when
// the simulator is already running.
func (r *Runner) Start(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.alive() {
		if r.sess.Running() {
			return false
		}
		// The session stopped the simulator but the loop has not noticed yet.
		r.cancel()
		<-r.done
	}
	if !r.sess.Start() {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.setErr(nil)
	go r.loop(loopCtx, r.done)
	return true
}

// Stop halts the loop and waits for it to exit. It reports whether the
// simulator was running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stopped := r.sess.Stop()
	if r.alive() {
		r.cancel()
		<-r.done
	}
	return stopped
}

// Step runs one tick immediately, whether or not the loop is active.
func (r *Runner) Step() (bool, error) {
	return r.sess.Step(r.sim.Tick)
}

// Running reports whether the simulator is active on the session.
func (r *Runner) Running() bool {
	return r.sess.Running()
}

// Err returns the error that stopped the last loop, if any.
func (r *Runner) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	return r.lastErr
}

// alive reports whether a loop goroutine is still running. Caller holds mu.
func (r *Runner) alive() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.sim.Config().Interval)
	defer ticker.Stop()

	log := r.logger.With("session", r.sess.ID())
	log.Debug("sim loop started", "interval", r.sim.Config().Interval)

	for {
		select {
		case <-ctx.Done():
			r.sess.Stop()
			log.Debug("sim loop cancelled")
			return
		case <-ticker.C:
			changed, err := r.sess.Tick(r.sim.Tick)
			if errors.Is(err, session.ErrSimulationStopped) {
				log.Debug("sim loop stopped")
				return
			}
			if err != nil {
				r.sess.Stop()
				r.setErr(err)
				log.Warn("sim tick failed", "error", err)
				return
			}
			if changed {
				log.Debug("sim tick applied")
			}
		}
	}
}

func (r *Runner) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	r.lastErr = err
}
