package audio

import (
	"fmt"
	"sync"
)

// Output is the playback backend behind the [Scheduler]: a monotonic output
// clock plus the ability to start a buffer at a given clock time.
//
// Implementations must invoke the done callback exactly once when a started
// buffer finishes playing naturally. A stopped source must never invoke it.
type Output interface {
	// Now returns the current position of the output clock in seconds.
	Now() float64

	// Start schedules buf to begin playing at startAt on the output clock
	// and returns a handle for cancellation.
	Start(buf *Buffer, startAt float64, done func()) (Source, error)
}

// Source is a scheduled playback source. Stop halts it immediately;
// stopping an already-finished source is a no-op.
type Source interface {
	Stop()
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithStateHooks registers the speaking/idle transition callbacks.
// speaking fires when a chunk is scheduled; idle fires when the active set
// drains and sessionOpen reports false. The sessionOpen gate prevents state
// flicker mid-turn when chunks arrive in bursts.
func WithStateHooks(speaking, idle func(), sessionOpen func() bool) SchedulerOption {
	return func(s *Scheduler) {
		s.onSpeaking = speaking
		s.onIdle = idle
		s.sessionOpen = sessionOpen
	}
}

// Scheduler performs gapless sequential playback of streamed response audio.
//
// Chunks for a turn are scheduled back-to-back: each chunk starts at
// max(previous end, clock now). The nextStart field is the single
// serialisation point for this ordering; it is read and written under the
// mutex in one step so stale reads cannot produce overlapping sources.
type Scheduler struct {
	out Output

	onSpeaking  func()
	onIdle      func()
	sessionOpen func() bool

	mu        sync.Mutex
	nextStart float64
	active    map[*activeSource]struct{}
}

// activeSource wraps a started Source so the active set has a stable,
// comparable key.
type activeSource struct {
	src Source
}

// NewScheduler creates a Scheduler playing through out.
func NewScheduler(out Output, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		out:    out,
		active: make(map[*activeSource]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Enqueue schedules buf for playback immediately after the previously
// enqueued chunk, or now if playback has drained. The source is registered
// in the active set and removed again when it ends naturally.
func (s *Scheduler) Enqueue(buf *Buffer) error {
	if buf == nil || len(buf.PCM) == 0 {
		return nil
	}

	s.mu.Lock()
	startAt := s.nextStart
	if now := s.out.Now(); now > startAt {
		startAt = now
	}

	entry := &activeSource{}
	src, err := s.out.Start(buf, startAt, func() { s.sourceEnded(entry) })
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("playback: start source: %w", err)
	}
	entry.src = src
	s.active[entry] = struct{}{}
	s.nextStart = startAt + buf.Seconds()
	s.mu.Unlock()

	if s.onSpeaking != nil {
		s.onSpeaking()
	}
	return nil
}

// sourceEnded removes a naturally-finished source from the active set and
// fires the idle hook when nothing is left playing and no session is open.
func (s *Scheduler) sourceEnded(entry *activeSource) {
	s.mu.Lock()
	delete(s.active, entry)
	drained := len(s.active) == 0
	s.mu.Unlock()

	if drained && s.onIdle != nil {
		if s.sessionOpen == nil || !s.sessionOpen() {
			s.onIdle()
		}
	}
}

// StopAll immediately stops every active source, clears the active set, and
// resets the output position to zero. Used on barge-in and session teardown.
// Safe to call when nothing is playing.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	stopped := make([]*activeSource, 0, len(s.active))
	for entry := range s.active {
		stopped = append(stopped, entry)
	}
	s.active = make(map[*activeSource]struct{})
	s.nextStart = 0
	s.mu.Unlock()

	for _, entry := range stopped {
		if entry.src != nil {
			entry.src.Stop()
		}
	}
}

// ActiveCount returns the number of sources currently scheduled or playing.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the clock position the next enqueued chunk would start
// at, assuming the clock has not advanced past it.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
