package sequencer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

var allPhases = []Phase{
	PhaseIdle, PhasePreview, PhaseIntro, PhaseFlight, PhaseAttack,
	PhaseOutroWin, PhaseOutroLose, PhaseShare, PhaseDone,
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name string
		from State
		ev   Event
		want State
	}{
		{"preview loaded", State{Phase: PhaseIdle}, PreviewLoaded{}, State{Phase: PhasePreview}},
		{"executed win", State{Phase: PhasePreview}, Executed{Success: true}, State{Phase: PhaseIntro, Won: true}},
		{"executed loss", State{Phase: PhasePreview}, Executed{Success: false}, State{Phase: PhaseIntro}},
		{"intro timer", State{Phase: PhaseIntro}, TimerElapsed{Phase: PhaseIntro}, State{Phase: PhaseFlight}},
		{"intro complete", State{Phase: PhaseIntro}, PhaseComplete{Phase: PhaseIntro}, State{Phase: PhaseFlight}},
		{"flight ignores timer", State{Phase: PhaseFlight}, TimerElapsed{Phase: PhaseFlight}, State{Phase: PhaseFlight}},
		{"flight complete", State{Phase: PhaseFlight}, PhaseComplete{Phase: PhaseFlight}, State{Phase: PhaseAttack}},
		{"attack won", State{Phase: PhaseAttack, Won: true}, PhaseComplete{Phase: PhaseAttack}, State{Phase: PhaseOutroWin, Won: true}},
		{"attack lost", State{Phase: PhaseAttack}, PhaseComplete{Phase: PhaseAttack}, State{Phase: PhaseOutroLose}},
		{"outro win timer", State{Phase: PhaseOutroWin, Won: true}, TimerElapsed{Phase: PhaseOutroWin}, State{Phase: PhaseShare, Won: true}},
		{"outro lose complete", State{Phase: PhaseOutroLose}, PhaseComplete{Phase: PhaseOutroLose}, State{Phase: PhaseShare}},
		{"share complete", State{Phase: PhaseShare}, PhaseComplete{Phase: PhaseShare}, State{Phase: PhaseDone}},
		{"share skip", State{Phase: PhaseShare}, SkipToShare{}, State{Phase: PhaseDone}},
		{"skip from flight", State{Phase: PhaseFlight, Won: true}, SkipToShare{}, State{Phase: PhaseShare, Won: true}},
		{"skip from preview", State{Phase: PhasePreview}, SkipToShare{}, State{Phase: PhaseShare}},
		{"skip from idle", State{Phase: PhaseIdle}, SkipToShare{}, State{Phase: PhaseIdle}},
		{"skip from done", State{Phase: PhaseDone}, SkipToShare{}, State{Phase: PhaseDone}},
		{"stale timer", State{Phase: PhaseFlight}, TimerElapsed{Phase: PhaseIntro}, State{Phase: PhaseFlight}},
		{"late completion", State{Phase: PhaseFlight}, PhaseComplete{Phase: PhaseIntro}, State{Phase: PhaseFlight}},
		{"execute outside preview", State{Phase: PhaseIdle}, Executed{Success: true}, State{Phase: PhaseIdle}},
		{"exit", State{Phase: PhaseAttack, Won: true}, Exit{}, State{Phase: PhaseIdle}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.from, tt.ev))
		})
	}
}

func drawEvent(t *rapid.T) Event {
	phase := rapid.SampledFrom(allPhases).Draw(t, "phase")
	return rapid.SampledFrom([]Event{
		PreviewLoaded{},
		Executed{Success: rapid.Bool().Draw(t, "success")},
		PhaseComplete{Phase: phase},
		TimerElapsed{Phase: phase},
		SkipToShare{},
		Exit{},
	}).Draw(t, "event")
}

// TestTransitionProperty checks invariants over random event sequences.
func TestTransitionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := State{Phase: PhaseIdle}
		n := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < n; i++ {
			e := drawEvent(t)
			next := Transition(s, e)

			if _, ok := e.(Exit); ok && next.Phase != PhaseIdle {
				t.Fatalf("exit from %s went to %s", s.Phase, next.Phase)
			}
			// Phase-tagged events for another phase never move the machine.
			switch ev := e.(type) {
			case PhaseComplete:
				if ev.Phase != s.Phase && next != s {
					t.Fatalf("completion for %s moved %s to %s", ev.Phase, s.Phase, next.Phase)
				}
			case TimerElapsed:
				if ev.Phase != s.Phase && next != s {
					t.Fatalf("timer for %s moved %s to %s", ev.Phase, s.Phase, next.Phase)
				}
				if s.Phase == PhaseFlight && next != s {
					t.Fatalf("flight advanced on a timer")
				}
			}
			// The outcome only changes on execute or a reset.
			if next.Won != s.Won && next.Phase != PhaseIntro && next.Phase != PhasePreview && next.Phase != PhaseIdle {
				t.Fatalf("won flag changed from %v to %v entering %s", s.Won, next.Won, next.Phase)
			}
			if next.Phase == PhaseOutroWin && !next.Won {
				t.Fatalf("entered outro_win after a lost raid")
			}
			if next.Phase == PhaseOutroLose && next.Won {
				t.Fatalf("entered outro_lose after a won raid")
			}
			s = next
		}
	})
}
