package sequencer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Cue is a sound the presentation plays.
type Cue string

const (
	CueTakeoff    Cue = "takeoff"
	CueFlightLoop Cue = "flight_loop"
	CueVictory    Cue = "victory"
	CueCrash      Cue = "crash"
	CueDefeat     Cue = "defeat"
)

// DefeatDelay is how long after the crash cue the defeat cue plays.
const DefeatDelay = 500 * time.Millisecond

// Audio plays cues. Implementations must not block.
type Audio interface {
	Play(cue Cue)
	Loop(cue Cue)
	Stop(cue Cue)
	StopAll()
}

// Listener is notified after every state change.
type Listener func(prev, next State)

// Sequencer owns the presentation state and its side effects. Only one raid
// sequence runs at a time.
type Sequencer struct {
	clock clockwork.Clock
	audio Audio

	mu        sync.Mutex
	state     State
	gen       uint64 // Bumped on every state entry; stale timers compare against it
	timers    []clockwork.Timer
	hidden    bool
	listeners []Listener
}

// New creates an idle Sequencer.
func New(clock clockwork.Clock, audio Audio) *Sequencer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Sequencer{
		clock: clock,
		audio: audio,
		state: State{Phase: PhaseIdle},
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes.
func (s *Sequencer) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Dispatch applies e and runs the entry effects of the new state.
// It returns the state after e.
func (s *Sequencer) Dispatch(e Event) State {
	next, _ := s.dispatch(e, nil)
	return next
}

// dispatch applies e. When gen is non-nil the event is dropped unless the
// sequencer is still in the state entry that gen was taken from.
func (s *Sequencer) dispatch(e Event, gen *uint64) (State, bool) {
	s.mu.Lock()
	if gen != nil && *gen != s.gen {
		state := s.state
		s.mu.Unlock()
		return state, false
	}
	prev := s.state
	next := Transition(prev, e)

	if _, exit := e.(Exit); exit {
		// Exit always silences and clears timers, even from idle.
		s.cancelTimersLocked()
		s.gen++
		s.state = next
		s.audio.StopAll()
	} else if next != prev {
		s.enterLocked(next)
	}
	listeners := s.listeners
	s.mu.Unlock()

	if next == prev {
		return next, false
	}
	log.Debug().
		Str("from", string(prev.Phase)).
		Str("to", string(next.Phase)).
		Msg("Raid phase changed")
	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, true
}

// Complete signals that the animation for phase finished.
func (s *Sequencer) Complete(phase Phase) State {
	return s.Dispatch(PhaseComplete{Phase: phase})
}

// SkipToShare jumps to the share screen.
func (s *Sequencer) SkipToShare() State {
	return s.Dispatch(SkipToShare{})
}

// Exit abandons the raid.
func (s *Sequencer) Exit() State {
	return s.Dispatch(Exit{})
}

// SetHidden records page visibility. Hiding cancels pending timers during
// the animated phases; showing again does not re-arm them, so the phase then
// waits for an explicit completion.
func (s *Sequencer) SetHidden(hidden bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden = hidden
	if hidden && animated(s.state.Phase) {
		s.cancelTimersLocked()
		s.gen++
	}
}

// enterLocked switches to next, cancelling anything scheduled by the
// previous state before running next's entry effect.
func (s *Sequencer) enterLocked(next State) {
	s.cancelTimersLocked()
	s.gen++
	s.state = next

	switch next.Phase {
	case PhaseIntro:
		s.audio.Play(CueTakeoff)
	case PhaseFlight:
		s.audio.Loop(CueFlightLoop)
	case PhaseAttack:
		s.audio.Stop(CueFlightLoop)
	case PhaseOutroWin:
		s.audio.Play(CueVictory)
	case PhaseOutroLose:
		s.audio.Play(CueCrash)
		s.afterLocked(DefeatDelay, func(gen uint64) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.gen == gen {
				s.audio.Play(CueDefeat)
			}
		})
	case PhaseShare, PhaseDone:
		s.audio.StopAll()
	}

	if d, ok := autoAdvance[next.Phase]; ok {
		phase := next.Phase
		s.afterLocked(d, func(gen uint64) {
			s.dispatch(TimerElapsed{Phase: phase}, &gen)
		})
	}
}

// afterLocked schedules fn after d. fn receives the state generation at
// scheduling time and must check it under the lock. Nothing is scheduled
// while hidden.
func (s *Sequencer) afterLocked(d time.Duration, fn func(gen uint64)) {
	if s.hidden && animated(s.state.Phase) {
		return
	}
	gen := s.gen
	s.timers = append(s.timers, s.clock.AfterFunc(d, func() { fn(gen) }))
}

func (s *Sequencer) cancelTimersLocked() {
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// animated reports whether p is one of the phases whose timers pause with
// the page.
func animated(p Phase) bool {
	switch p {
	case PhaseIdle, PhasePreview, PhaseShare, PhaseDone:
		return false
	}
	return true
}
