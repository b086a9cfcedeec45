package session

import (
	"github.com/nvandessel/baynet/internal/engine"
	"github.com/nvandessel/baynet/internal/network"
)

// Advance computes a candidate successor of the state it is given. It may
// read the state but must not modify it; a nil report leaves the live state
// as it is.
type Advance func(st *network.State) (*engine.Report, error)

// Running reports whether the automatic simulator is active.
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.running
}

// Start marks the automatic simulator active. It reports whether the flag
// changed.
func (s *Session) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}
	s.running = true
	s.logger.Debug("simulation started")
	return true
}

// Stop marks the automatic simulator inactive. It reports whether the flag
// changed.
func (s *Session) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	s.running = false
	s.logger.Debug("simulation stopped")
	return true
}

// Tick runs fn against the live state while the simulator is active and
// installs the state it returns. It returns ErrSimulationStopped once the
// simulator has been stopped, by Stop, Reset or LoadScenario.
func (s *Session) Tick(fn Advance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false, ErrSimulationStopped
	}
	return s.advance(fn)
}

// Step runs fn once regardless of the simulator flag.
func (s *Session) Step(fn Advance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.advance(fn)
}

func (s *Session) advance(fn Advance) (bool, error) {
	rep, err := fn(s.state)
	if err != nil {
		return false, err
	}
	if rep == nil || rep.State == nil {
		return false, nil
	}
	s.state = rep.State
	s.fired = rep.Rules
	verdict, err := s.model.Guidelines.Evaluate(s.state, s.config.Language)
	if err != nil {
		return true, err
	}
	s.verdict = verdict
	return true, nil
}
