package main

import (
	"fmt"

	"github.com/fwojciec/parachute"
	"github.com/fwojciec/parachute/transcript"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxProbes bounds concurrent stream-status requests.
const maxProbes = 8

func (a *app) joinCmd() *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:   "join <session>",
		Short: "Follow a turn the server is still generating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]

			show := a.printer.Event
			if history {
				t, err := a.client.Transcript(ctx, sessionID, parachute.TranscriptQuery{})
				if err != nil {
					return err
				}
				a.printer.Turns(rebuild.Reconstruct(t.Events))
				// The join replays events already in the stored history.
				seen := transcript.Seen(t.Events)
				show = func(e parachute.Event) {
					if !seen(e) {
						a.printer.Event(e)
					}
				}
			}

			stream, ok := a.client.JoinStream(ctx, sessionID)
			if !ok {
				a.printer.Notice("no running turn for " + sessionID)
				return nil
			}
			defer stream.Close()
			result := parachute.Drain(stream, parachute.WithEventHandler(show))
			if !result.Completed() && ctx.Err() == nil {
				return fmt.Errorf("join failed: %s", result.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "Print the stored conversation before following")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session>...",
		Short: "Report whether sessions have a running turn",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			active := make([]bool, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxProbes)
			for i, id := range args {
				g.Go(func() error {
					active[i] = a.client.HasActiveStream(ctx, id)
					return nil
				})
			}
			// Probes never fail; an unreachable server reads as idle.
			_ = g.Wait()
			for i, id := range args {
				a.printer.Status(id, active[i])
			}
			return nil
		},
	}
}

func (a *app) streamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List sessions with a running turn",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printer.Streams(a.client.ActiveStreams(cmd.Context()))
			return nil
		},
	}
}

func (a *app) abortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <session>",
		Short: "Stop the running turn of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.client.Abort(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ok {
				a.printer.Notice("aborted " + args[0])
			} else {
				a.printer.Notice("nothing to abort for " + args[0])
			}
			return nil
		},
	}
}
