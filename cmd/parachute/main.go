// Command parachute is a terminal client for a Parachute server: it sends
// chat turns, follows and aborts running turns, and prints stored
// transcripts.
//
// Usage:
//
//	parachute chat "what's on my list today?"
//	parachute chat --session s1            # interactive
//	parachute join s1 --history
//	parachute transcript s1 --full --out s1.json
//
// Settings come from ~/.config/parachute/config.yaml, a .env file in the
// current directory and PARACHUTE_* environment variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Env is read here and passed down as values.
	env := environment{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		getenv:     os.Getenv,
		configPath: defaultConfigPath(),
		dotEnv:     []string{".env"},
	}
	if err := newRootCmd(env).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "parachute: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "parachute", "config.yaml")
}
