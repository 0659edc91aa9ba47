package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"city-raid/internal/api"
	"city-raid/internal/raidclient"
	"city-raid/internal/sequencer"
)

// Animation lengths for the phases that wait on an explicit completion.
var manualPhases = map[sequencer.Phase]time.Duration{
	sequencer.PhaseFlight: 3 * time.Second,
	sequencer.PhaseAttack: 2 * time.Second,
}

type raidOptions struct {
	boost   int64
	vehicle string
	skip    bool
	timeout time.Duration
}

// logAudio prints cues instead of playing them.
type logAudio struct{}

func (logAudio) Play(c sequencer.Cue) { log.Info().Str("cue", string(c)).Msg("Audio play") }
func (logAudio) Loop(c sequencer.Cue) { log.Info().Str("cue", string(c)).Msg("Audio loop") }
func (logAudio) Stop(c sequencer.Cue) { log.Info().Str("cue", string(c)).Msg("Audio stop") }
func (logAudio) StopAll()             { log.Info().Msg("Audio stop all") }

func runRaid(ctx context.Context, client *raidclient.Client, target string, opts raidOptions) error {
	seq := sequencer.New(nil, logAudio{})
	ctrl := sequencer.NewController(client, seq)

	phases := make(chan sequencer.Phase, 16)
	seq.Subscribe(func(_, next sequencer.State) {
		phases <- next.Phase
	})

	reqCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	preview, err := ctrl.Preview(reqCtx, target)
	if err != nil {
		return err
	}
	printPreview(preview)

	req := api.ExecuteRequest{TargetLogin: target}
	if opts.boost > 0 {
		req.BoostPurchaseID = &opts.boost
	}
	if opts.vehicle != "" {
		req.VehicleID = &opts.vehicle
	}
	result, err := ctrl.Execute(reqCtx, req)
	if err != nil {
		seq.Exit()
		return err
	}
	if opts.skip {
		seq.SkipToShare()
	}

	for {
		select {
		case <-ctx.Done():
			seq.Exit()
			return nil
		case phase := <-phases:
			fmt.Printf("== %s\n", phase)
			if d, ok := manualPhases[phase]; ok {
				p := phase
				time.AfterFunc(d, func() { seq.Complete(p) })
			}
			switch phase {
			case sequencer.PhaseShare:
				printResult(result)
				seq.Complete(sequencer.PhaseShare)
			case sequencer.PhaseDone:
				return nil
			}
		}
	}
}

func printResult(r *api.ExecuteResponse) {
	outcome := "Raid failed"
	if r.Success {
		outcome = "Raid succeeded"
	}
	fmt.Printf("%s: %d vs %d on %s\n", outcome, r.AttackScore, r.DefenseScore, r.Defender.Slug)
	fmt.Printf("  +%d XP (total %d)\n", r.XPEarned, r.NewRaidXP)
	if r.NewTitle != nil {
		fmt.Printf("  Title: %s\n", *r.NewTitle)
	}
	for _, a := range r.NewAchievements {
		fmt.Printf("  Achievement unlocked: %s\n", a)
	}
	if r.RewardsPending {
		fmt.Println("  Rewards are still being applied.")
	}
}
