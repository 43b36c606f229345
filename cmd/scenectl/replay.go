package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thraizz/battlescene/internal/anim"
	"github.com/thraizz/battlescene/internal/compose"
	"github.com/thraizz/battlescene/internal/logpanel"
	"github.com/thraizz/battlescene/internal/prefs"
	"github.com/thraizz/battlescene/internal/replay"
)

// settleLimit bounds the post-playback drain of the sequencer.
const settleLimit = 10000

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <file>",
		Short: "Feed a recording through a composer and print each plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, args[0])
		},
	}
}

func runReplay(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rec, err := replay.Load(path)
	if err != nil {
		return err
	}

	// the sequencer runs on recording time, not wall time
	clock := rec.Started
	seq := anim.NewSequencer(logger, anim.WithClock(func() time.Time { return clock }))
	composer := compose.NewComposer(logger, cfg.Compose(), seq, logpanel.NewPanel(prefs.Default()))

	partials := 0
	composer.Bus().SubscribeTyped(compose.NotifyPlanReady, func(n compose.Notification) {
		if n.Plan != nil && n.Plan.Partial {
			partials++
		}
	})

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "recording %s: %d frames\n", rec.BattleID, rec.Len())

	skipped := 0
	applied, err := rec.Play(func(f replay.Frame) error {
		clock = rec.Started.Add(f.Offset)
		seq.Advance(clock)

		plan, err := composer.ApplyFrame(f.Data)
		if err != nil {
			skipped++
			fmt.Fprintf(out, "%10s  skipped: %v\n", f.Offset, err)
			return nil
		}
		fmt.Fprintf(out, "%10s  %s\n", f.Offset, summarize(plan))
		return nil
	})
	if err != nil {
		return err
	}

	for i := 0; i < settleLimit && seq.Pending() > 0; i++ {
		next, ok := seq.NextDeadline()
		if !ok {
			break
		}
		if next.After(clock) {
			clock = next
		}
		seq.Advance(clock)
	}
	composer.Close()

	fmt.Fprintf(out, "%d frames applied, %d skipped, %d partial plans\n", applied-skipped, skipped, partials)
	return nil
}

func summarize(p compose.Plan) string {
	animated, events := 0, 0
	for _, it := range p.Items {
		if it.Animation != nil {
			animated++
		}
		if it.Kind == compose.ItemEvent {
			events++
		}
	}
	sum := p.Checksum
	if len(sum) > 12 {
		sum = sum[:12]
	}
	return fmt.Sprintf("cycle=%d items=%d animated=%d log=%d follow=%s checksum=%s",
		p.Cycle, len(p.Items), animated, events, p.Follow, sum)
}
