package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hovavo/pxt-states/internal/scheduler"
	"github.com/hovavo/pxt-states/internal/states"
)

const defaultDemoDwell = 3 * time.Second

func demoCmd() *cobra.Command {
	var dwell time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the Idle to Done example with debug output",
		Long: `Runs a single machine that enters Idle, stays there until its running
time exceeds --dwell, then moves to Done. Debug lines and the exit and change
handler reports are printed to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), dwell)
		},
	}
	cmd.Flags().DurationVar(&dwell, "dwell", defaultDemoDwell, "How long to stay in Idle")
	return cmd
}

func runDemo(ctx context.Context, out io.Writer, dwell time.Duration) error {
	sched := scheduler.New(20 * time.Millisecond)
	reg := states.New(
		states.WithScheduler(sched),
		states.WithLineWriter(states.LineWriterFunc(func(line string) {
			fmt.Fprintln(out, line)
		})),
	)
	defer func() {
		reg.Close()
		sched.Wait()
	}()
	reg.SetDebug(true)

	done := make(chan struct{})
	reg.OnExit("Idle", func(context.Context) {
		fmt.Fprintln(out, "Idle state exit:")
		fmt.Fprintf(out, "- Next state: %s\n", reg.NextState())
		fmt.Fprintf(out, "- Next state is \"Idle\": %t\n", reg.MatchNext("Idle"))
	})
	reg.OnChange(func(context.Context) {
		fmt.Fprintln(out, "State changed:")
		fmt.Fprintf(out, "- Current state: %s\n", reg.CurrentState())
		fmt.Fprintf(out, "- Previous state: %s\n", reg.PreviousState())
		fmt.Fprintf(out, "- Current state is \"Idle\": %t\n", reg.MatchCurrent("Idle"))
		fmt.Fprintf(out, "- Previous state was \"Idle\": %t\n", reg.MatchPrevious("Idle"))
	})
	reg.OnLoop("Idle", func(ctx context.Context) {
		if reg.RunningTime() > dwell {
			reg.SetState(ctx, "Done")
		}
	})
	reg.OnEnter("Done", func(context.Context) {
		close(done)
	})

	reg.SetState(ctx, "Idle")

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
