package main

import (
	"fmt"
	"time"

	"github.com/fwojciec/parachute"
	parachutejson "github.com/fwojciec/parachute/json"
	"github.com/fwojciec/parachute/transcript"
	"github.com/spf13/cobra"
)

// rebuild leaves turns without a stored timestamp undated for display.
var rebuild = transcript.Reconstructor{Now: func() time.Time { return time.Time{} }}

type transcriptOptions struct {
	full         bool
	afterCompact bool
	segment      int
	asJSON       bool
	raw          bool
	out          string
}

func (a *app) transcriptCmd() *cobra.Command {
	var opts transcriptOptions
	cmd := &cobra.Command{
		Use:   "transcript <session>",
		Short: "Print the stored conversation of a session",
		Long: `Fetch a session's stored transcript and print it as conversation turns.

--json prints the turns in the saved-turns format, --raw prints the
normalized transcript events, and --out saves the turns to a file that
"parachute show" can print later.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := parachute.TranscriptQuery{Full: opts.full, AfterCompact: opts.afterCompact}
			if cmd.Flags().Changed("segment") {
				q.Segment = &opts.segment
			}
			t, err := a.client.Transcript(cmd.Context(), args[0], q)
			if err != nil {
				return err
			}
			turns := rebuild.Reconstruct(transcript.Dedupe(t.Events))

			if opts.out != "" {
				if err := parachutejson.Save(opts.out, t.SessionID, turns); err != nil {
					return fmt.Errorf("save transcript: %w", err)
				}
				a.printer.Notice(fmt.Sprintf("saved %d turns to %s", len(turns), opts.out))
				return nil
			}

			var data []byte
			switch {
			case opts.raw:
				data, err = parachutejson.MarshalTranscript(t)
			case opts.asJSON:
				data, err = parachutejson.MarshalTurns(t.SessionID, turns)
			default:
				a.printer.Turns(turns)
				return nil
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.full, "full", false, "Fetch the whole history, ignoring compaction")
	flags.BoolVar(&opts.afterCompact, "after-compact", false, "Fetch only events after the last compaction")
	flags.IntVar(&opts.segment, "segment", 0, "Fetch one compaction segment")
	flags.BoolVar(&opts.asJSON, "json", false, "Print turns as JSON")
	flags.BoolVar(&opts.raw, "raw", false, "Print normalized transcript events as JSON")
	flags.StringVarP(&opts.out, "out", "o", "", "Save turns to a file instead of printing")
	cmd.MarkFlagsMutuallyExclusive("json", "raw", "out")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <file>",
		Short: "Print turns saved with transcript --out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, turns, err := parachutejson.Load(args[0])
			if err != nil {
				return err
			}
			if sessionID != "" {
				a.printer.Notice("session " + sessionID)
			}
			a.printer.Turns(turns)
			return nil
		},
	}
}
