// Package sequencer drives the client-side raid presentation.
//
// The phase machine is a pure function from (State, Event) to State. The
// Sequencer interprets state changes into audio cues and auto-advance timers,
// and the Controller turns preview and execute responses into events.
package sequencer

import "time"

// Phase is one step of the raid presentation.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePreview   Phase = "preview"
	PhaseIntro     Phase = "intro"
	PhaseFlight    Phase = "flight"
	PhaseAttack    Phase = "attack"
	PhaseOutroWin  Phase = "outro_win"
	PhaseOutroLose Phase = "outro_lose"
	PhaseShare     Phase = "share"
	PhaseDone      Phase = "done"
)

// Auto-advance delays. Phases not listed only advance on an explicit
// completion signal.
var autoAdvance = map[Phase]time.Duration{
	PhaseIntro:     4500 * time.Millisecond,
	PhaseOutroWin:  3500 * time.Millisecond,
	PhaseOutroLose: 3000 * time.Millisecond,
}

// AutoAdvance returns the auto-advance delay of p, if it has one.
func AutoAdvance(p Phase) (time.Duration, bool) {
	d, ok := autoAdvance[p]
	return d, ok
}

// State is the sequencer state. Won is fixed once the raid is executed.
type State struct {
	Phase Phase
	Won   bool
}

// Event is an input to the phase machine.
type Event interface {
	isEvent()
}

// PreviewLoaded reports a successful preview request.
type PreviewLoaded struct{}

// Executed reports a successful execute request.
type Executed struct {
	Success bool
}

// PhaseComplete is the animation layer's completion signal for Phase.
type PhaseComplete struct {
	Phase Phase
}

// TimerElapsed reports that the auto-advance timer of Phase fired.
type TimerElapsed struct {
	Phase Phase
}

// SkipToShare jumps straight to the share screen.
type SkipToShare struct{}

// Exit abandons the raid.
type Exit struct{}

func (PreviewLoaded) isEvent() {}
func (Executed) isEvent()      {}
func (PhaseComplete) isEvent() {}
func (TimerElapsed) isEvent()  {}
func (SkipToShare) isEvent()   {}
func (Exit) isEvent()          {}

// Transition returns the state after e. Events that do not apply to the
// current state, including completions and timers for a phase already left,
// return s unchanged.
func Transition(s State, e Event) State {
	switch e := e.(type) {
	case Exit:
		return State{Phase: PhaseIdle}

	case SkipToShare:
		switch s.Phase {
		case PhaseIdle, PhaseDone:
			return s
		case PhaseShare:
			return State{Phase: PhaseDone, Won: s.Won}
		default:
			return State{Phase: PhaseShare, Won: s.Won}
		}

	case PreviewLoaded:
		if s.Phase == PhaseIdle || s.Phase == PhasePreview {
			return State{Phase: PhasePreview}
		}

	case Executed:
		if s.Phase == PhasePreview {
			return State{Phase: PhaseIntro, Won: e.Success}
		}

	case TimerElapsed:
		if e.Phase == s.Phase {
			if _, ok := autoAdvance[s.Phase]; ok {
				return advance(s)
			}
		}

	case PhaseComplete:
		if e.Phase == s.Phase {
			return advance(s)
		}
	}
	return s
}

// advance moves s to the phase following its own.
func advance(s State) State {
	switch s.Phase {
	case PhaseIntro:
		s.Phase = PhaseFlight
	case PhaseFlight:
		s.Phase = PhaseAttack
	case PhaseAttack:
		if s.Won {
			s.Phase = PhaseOutroWin
		} else {
			s.Phase = PhaseOutroLose
		}
	case PhaseOutroWin, PhaseOutroLose:
		s.Phase = PhaseShare
	case PhaseShare:
		s.Phase = PhaseDone
	}
	return s
}
