package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/parachute"
	"github.com/fwojciec/parachute/agent"
	"github.com/fwojciec/parachute/fs"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// abortTimeout bounds the abort sent after an interrupted turn.
const abortTimeout = 5 * time.Second

type chatOptions struct {
	session      string
	attachments  []string
	contexts     []string
	vault        string
	systemPrompt string
	workDir      string
	recovery     string
}

func (a *app) chatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat [message...]",
		Short: "Send a message, or chat interactively when no message is given",
		Long: `Send a message and stream the reply.

Without a message, chat reads one message per line from stdin until EOF or
/quit. Interrupting a turn with Ctrl-C aborts it on the server.

Examples:
  parachute chat "summarize today's notes" --context 'Daily/2026-10-*.md'
  parachute chat --session s1 --attach receipt.png "what did I spend?"
  parachute chat --session s1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, opts, strings.Join(args, " "))
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.session, "session", "s", "", "Session id to continue (default: new session)")
	flags.StringArrayVarP(&opts.attachments, "attach", "a", nil, "File to attach to the first message")
	flags.StringArrayVarP(&opts.contexts, "context", "c", nil, "Vault glob of context files, e.g. 'Notes/**/*.md'")
	flags.StringVar(&opts.vault, "vault", ".", "Local vault directory context globs are resolved against")
	flags.StringVar(&opts.systemPrompt, "system-prompt", "", "System prompt override")
	flags.StringVar(&opts.workDir, "working-dir", "", "Working directory for the agent, relative to the vault")
	flags.StringVar(&opts.recovery, "recovery", "", "Recovery after a lost session: inject_context or fresh_start")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, opts chatOptions, message string) error {
	mode := a.cfg.RecoveryMode
	if opts.recovery != "" {
		m, err := parachute.ParseRecoveryMode(opts.recovery)
		if err != nil {
			return err
		}
		mode = m
	}
	a.cfg.RecoveryMode = mode

	contexts, err := fs.NewVault(opts.vault).Contexts(append(append([]string(nil), a.cfg.Contexts...), opts.contexts...))
	if err != nil {
		return err
	}
	files := fs.NewVaultFs(afero.NewOsFs())
	var attachments []parachute.Attachment
	for _, name := range opts.attachments {
		att, err := files.ReadAttachment(name)
		if err != nil {
			return err
		}
		a.printer.Attachment(att)
		attachments = append(attachments, att)
	}

	systemPrompt := firstNonEmpty(opts.systemPrompt, a.cfg.SystemPrompt)
	workDir := firstNonEmpty(opts.workDir, a.cfg.WorkingDirectory)
	chat := agent.New(a.client, opts.session,
		agent.WithRecoveryMode(mode),
		agent.WithLogger(a.logger),
		agent.WithEventHandler(a.printer.Event),
		agent.WithRequestDefaults(func(req *parachute.TurnRequest) {
			req.SystemPrompt = systemPrompt
			req.WorkingDirectory = workDir
			req.Contexts = contexts
			// Attachments go with the first message only.
			req.Attachments, attachments = attachments, nil
		}),
	)

	ctx := cmd.Context()
	if message != "" {
		result, err := a.send(ctx, chat, message)
		if err != nil {
			return err
		}
		if !result.Completed() && ctx.Err() == nil {
			return fmt.Errorf("turn failed: %s", result.Err)
		}
		return nil
	}

	// Pick up a turn that is still running before reading input.
	if _, ok := chat.Resume(ctx); ok {
		a.printer.Notice("resumed running turn")
	}
	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(cmd.OutOrStdout(), "› ")
		if !in.Scan() {
			fmt.Fprintln(cmd.OutOrStdout())
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}
		// Failed turns were already printed; the conversation goes on.
		if _, err := a.send(ctx, chat, line); err != nil {
			if errors.Is(err, parachute.ErrValidation) || errors.Is(err, parachute.ErrTurnInProgress) {
				a.printer.Notice(err.Error())
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (a *app) send(ctx context.Context, chat *agent.Chat, message string) (parachute.TurnResult, error) {
	result, err := chat.Send(ctx, message)
	if err != nil {
		return result, err
	}
	if ctx.Err() != nil && chat.SessionID() != "" {
		a.abortInterrupted(chat.SessionID())
	}
	if chat.Pending() != nil {
		a.printer.Notice("next message recovers the session with " + recoveryLabel(a.cfg.RecoveryMode))
	}
	return result, nil
}

// abortInterrupted asks the server to stop a turn the user interrupted. The
// command context is already canceled, so the request gets its own.
func (a *app) abortInterrupted(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	ok, err := a.client.Abort(ctx, sessionID)
	switch {
	case err != nil:
		a.logger.Warn().Err(err).Str("session_id", sessionID).Msg("abort after interrupt failed")
	case ok:
		a.printer.Notice("aborted " + sessionID)
	}
}

func recoveryLabel(m parachute.RecoveryMode) string {
	if m == parachute.RecoveryFreshStart {
		return "a fresh start"
	}
	return "the stored conversation"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
