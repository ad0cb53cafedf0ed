package main

import (
	"fmt"
	"io"

	"github.com/fwojciec/parachute/config"
	parachutehttp "github.com/fwojciec/parachute/http"
	"github.com/fwojciec/parachute/lipgloss"
	"github.com/fwojciec/parachute/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// environment is everything the commands take from the process.
type environment struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	getenv     func(string) string
	configPath string
	dotEnv     []string
}

// app holds the state shared by all subcommands once the root command has
// resolved its settings.
type app struct {
	env environment

	configPath string
	logLevel   string
	baseURL    string

	cfg     config.Config
	logger  zerolog.Logger
	client  *parachutehttp.Client
	printer *lipgloss.Printer
}

func newRootCmd(env environment) *cobra.Command {
	a := &app{env: env}
	root := &cobra.Command{
		Use:           "parachute",
		Short:         "Chat with a Parachute server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.SetIn(env.stdin)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", env.configPath, "Path to the YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.StringVar(&a.baseURL, "url", "", "Server URL (overrides config)")

	root.AddCommand(
		a.chatCmd(),
		a.joinCmd(),
		a.statusCmd(),
		a.streamsCmd(),
		a.abortCmd(),
		a.transcriptCmd(),
		a.showCmd(),
	)
	return root
}

func (a *app) setup() error {
	getenv, err := config.LoadDotEnv(a.env.getenv, a.env.dotEnv...)
	if err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath, getenv)
	if err != nil {
		return err
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:  level,
		Output: a.env.stderr,
		Pretty: cfg.LogPretty,
	})
	a.client = parachutehttp.New(cfg.BaseURL,
		parachutehttp.WithAPIKey(cfg.APIKey),
		parachutehttp.WithPathPrefix(cfg.PathPrefix),
		parachutehttp.WithLogger(a.logger),
		parachutehttp.WithConnectTimeout(cfg.ConnectTimeout),
		parachutehttp.WithIdleTimeout(cfg.IdleTimeout),
		parachutehttp.WithProbeTimeout(cfg.ProbeTimeout),
		parachutehttp.WithJoinRetries(cfg.JoinRetries, 0),
	)
	a.printer = lipgloss.NewPrinter(a.env.stdout)
	a.logger.Debug().Str("url", cfg.BaseURL).Str("config", a.configPath).Msg("client ready")
	return nil
}

func (a *app) close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}
