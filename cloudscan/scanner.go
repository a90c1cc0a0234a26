// Package cloudscan turns a stream of depth frames into world placed point cloud
// snapshots, under an operator selected scan mode.
//
// The depth callback calls Scanner.OnDepthFrame. The render loop calls
// Scanner.Present between frames and issues the operator commands.
package cloudscan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
)

// ViewSwitcher is told when streaming starts so the host can show the live camera.
type ViewSwitcher interface {
	FirstPerson()
}

// Scanner wires the state machine, pipeline and registry together.
type Scanner struct {
	cfg    Config
	poses  PoseProvider
	logger logging.Logger

	registry *Registry
	handoff  Handoff

	// frameMu keeps depth frames one at a time and guards lastReject.
	frameMu    sync.Mutex
	lastReject error
	// renderMu serializes Present and the commands that touch the registry.
	renderMu sync.Mutex

	mu    sync.Mutex
	sm    StateMachine
	timer FrameTimer
	stats Stats
	fatal error
	view  ViewSwitcher
}

// NewScanner returns a scanner in StateOff with an empty registry.
func NewScanner(cfg Config, poses PoseProvider, presenter Presenter, logger logging.Logger) (*Scanner, error) {
	if poses == nil {
		return nil, errors.New("need a pose provider")
	}
	if logger == nil {
		logger = logging.NewLogger("cloudscan")
	}
	return &Scanner{
		cfg:      cfg.withDefaults(),
		poses:    poses,
		logger:   logger,
		registry: NewRegistry(presenter),
	}, nil
}

// SetViewSwitcher sets who is told when streaming starts.
func (s *Scanner) SetViewSwitcher(v ViewSwitcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = v
}

// OnDepthFrame processes one depth frame. It never blocks on the render loop.
//
// ErrPoseUnavailable, ErrCapacityExceeded and ErrMalformedFrame reject only this
// frame. ErrSingularExtrinsic is returned for this and every later frame.
func (s *Scanner) OnDepthFrame(ctx context.Context, f DepthFrame) error {
	s.frameMu.Lock()
	defer s.frameMu.Unlock()

	s.mu.Lock()
	if s.fatal != nil {
		err := s.fatal
		s.mu.Unlock()
		return err
	}
	delta := s.timer.Observe(f.Timestamp)
	plan := s.sm.Plan(f.PointCount)
	s.mu.Unlock()

	if err := ValidateFrame(f, s.cfg.MaxPoints); err != nil {
		kind := ErrMalformedFrame
		if errors.Is(err, ErrCapacityExceeded) {
			kind = ErrCapacityExceeded
		}
		if kind != s.lastReject {
			s.logger.Warnf("rejecting depth frame at %f: %v", f.Timestamp, err)
		} else {
			s.logger.Debugf("dropped depth frame at %f: %v", f.Timestamp, err)
		}
		s.lastReject = kind
		return err
	}
	s.lastReject = nil

	if !plan.Materialize {
		s.mu.Lock()
		s.stats = Stats{PointCount: f.PointCount, DeltaMillis: delta}
		s.mu.Unlock()
		return nil
	}

	snap, stats, err := BuildSnapshot(ctx, s.poses, s.cfg.Basis, f, plan.Style)
	if err != nil {
		if errors.Is(err, ErrSingularExtrinsic) {
			s.logger.Errorf("stopping depth processing: %v", err)
			s.mu.Lock()
			s.fatal = err
			s.mu.Unlock()
			return err
		}
		s.logger.Debugf("skipping depth frame at %f: %v", f.Timestamp, err)
		return err
	}
	stats.DeltaMillis = delta

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = stats
	if !s.sm.Commit(plan) {
		s.logger.Debugf("scan state changed while processing frame at %f, dropping it", f.Timestamp)
		return nil
	}
	s.handoff.Push(RenderOp{Clear: plan.Clear, Snapshot: snap, Generation: plan.Generation})
	return nil
}

// Present applies the pending render ops to the registry and returns how many
// snapshots were added. Call it from the render loop.
func (s *Scanner) Present() int {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	ops := s.handoff.Drain()
	s.mu.Lock()
	generation := s.sm.Generation()
	s.mu.Unlock()

	return Apply(s.registry, ops, generation)
}

// StartScan begins accumulating; the first frame replaces what is shown.
func (s *Scanner) StartScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sm.StartScan() {
		s.logger.Infof("scan started")
	}
}

// StopScan stops accumulating. Snapshots stay.
func (s *Scanner) StopScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sm.StopScan() {
		s.logger.Infof("scan stopped with %d snapshots", s.registry.Len())
	}
}

// Screenshot captures the next frame only.
func (s *Scanner) Screenshot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sm.Screenshot()
}

// Clear removes every snapshot now and returns how many were removed.
func (s *Scanner) Clear() int {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	s.sm.Cleared(s.cfg.ClearStopsScan)
	s.mu.Unlock()

	n := s.registry.ClearAll()
	s.logger.Debugf("cleared %d snapshots", n)
	return n
}

// Stream clears everything and shows each new frame in place of the last.
func (s *Scanner) Stream() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	s.sm.Stream()
	view := s.view
	s.mu.Unlock()

	s.registry.ClearAll()
	if view != nil {
		view.FirstPerson()
	}
	s.logger.Infof("streaming")
}

// Save writes the live snapshots to a PCD file and returns its path.
func (s *Scanner) Save(now time.Time) (string, error) {
	fn, err := SaveSnapshots(s.cfg.SaveDir, now, s.registry.Snapshots())
	if err != nil {
		return "", err
	}
	s.logger.Infof("saved scan to %s", fn)
	return fn, nil
}

// State is the current scan mode.
func (s *Scanner) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sm.State()
}

// Stats summarizes the last frame.
func (s *Scanner) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Err is the fatal error that stopped processing, if any.
func (s *Scanner) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Registry is the set of presented snapshots.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Pending is the number of render ops waiting for Present.
func (s *Scanner) Pending() int {
	return s.handoff.Len()
}
