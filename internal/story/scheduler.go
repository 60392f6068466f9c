package story

import (
	"sync"
	"time"

	"storyloom/internal/logger"
	"storyloom/pkg/storytypes"
)

const (
	// DefaultQuietInterval is how long after the last change a write
	// waits before running. Typing cadence rarely leaves gaps this
	// long, so bursts of turns coalesce into one write.
	DefaultQuietInterval = 1500 * time.Millisecond

	// DefaultBadgeInterval is how long the saved badge lingers before
	// clearing.
	DefaultBadgeInterval = 2 * time.Second
)

// SaveScheduler coalesces transcript writes. Every RequestSave resets a
// quiet timer; when it elapses, the scheduler snapshots the active
// conversation and writes it once. The snapshot is taken at fire time,
// so the write always carries the latest state, and nothing is written
// when no story is active anymore.
type SaveScheduler struct {
	quiet      time.Duration
	badgeClear time.Duration

	// snapshot returns the active conversation, or false when none is.
	snapshot func() (*storytypes.Conversation, bool)
	// write persists one snapshot.
	write func(*storytypes.Conversation) error
	// notify reports badge transitions. Called from timer goroutines.
	notify func(storytypes.SaveState)

	mu         sync.Mutex
	timer      *time.Timer
	badgeTimer *time.Timer
}

// NewSaveScheduler wires a scheduler to its callbacks. All three must be
// non-nil. Non-positive intervals fall back to the defaults.
func NewSaveScheduler(quiet, badgeClear time.Duration, snapshot func() (*storytypes.Conversation, bool), write func(*storytypes.Conversation) error, notify func(storytypes.SaveState)) *SaveScheduler {
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	if badgeClear <= 0 {
		badgeClear = DefaultBadgeInterval
	}
	return &SaveScheduler{
		quiet:      quiet,
		badgeClear: badgeClear,
		snapshot:   snapshot,
		write:      write,
		notify:     notify,
	}
}

// RequestSave schedules a write after the quiet interval, folding into
// any write already pending.
func (s *SaveScheduler) RequestSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.fire)
}

// Cancel drops any pending write without running it. Switching stories
// cancels the old story's debounce rather than letting it fire against
// the new one.
func (s *SaveScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Flush runs any pending write immediately. Called on shutdown so a
// final exchange inside the quiet window is not lost.
func (s *SaveScheduler) Flush() {
	s.mu.Lock()
	pending := s.timer != nil
	if pending {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	if pending {
		s.fire()
	}
}

func (s *SaveScheduler) fire() {
	s.mu.Lock()
	s.timer = nil
	s.mu.Unlock()

	conv, ok := s.snapshot()
	if !ok {
		logger.Debug("skipping debounced save, no active story")
		return
	}

	s.notify(storytypes.SaveSaving)
	if err := s.write(conv); err != nil {
		logger.Warn("debounced save failed", "title", conv.Title, "error", err)
		s.notify(storytypes.SaveIdle)
		return
	}
	s.notify(storytypes.SaveSaved)
	logger.Debug("story saved", "title", conv.Title, "turns", len(conv.Turns))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.badgeTimer != nil {
		s.badgeTimer.Stop()
	}
	s.badgeTimer = time.AfterFunc(s.badgeClear, func() {
		s.notify(storytypes.SaveIdle)
	})
}
