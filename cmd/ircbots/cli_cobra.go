package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/ircbots/pkg/config"
	"github.com/dotsetgreg/ircbots/pkg/logger"
	"github.com/dotsetgreg/ircbots/pkg/metrics"
	"github.com/dotsetgreg/ircbots/pkg/providers"
	"github.com/dotsetgreg/ircbots/pkg/team"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	debug       bool
	logFormat   string
	metricsAddr string
	envFile     string

	runtime config.RuntimeConfig
}

func executeCLI() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRootCommand(true)
	return root.ExecuteContext(ctx)
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   appName,
		Short: "LLM-backed IRC bots",
		Long: strings.TrimSpace(`ircbots connects one or more chat bots to an IRC channel and answers
messages with a remote language model.

Each bot is described by a YAML file. Run a single bot, a whole team from a
directory of configs, or talk to a bot locally from the console.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	pf := root.PersistentFlags()
	pf.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json (default from IRCBOTS_LOG_FORMAT)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics, /health and /ready on this address")
	pf.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file instead of ./.env")

	root.AddCommand(newRunCommand(opts))
	root.AddCommand(newTeamCommand(opts))
	root.AddCommand(newConsoleCommand(opts))
	root.AddCommand(newCheckCommand())
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

// setup loads .env files and the process runtime config, then configures
// logging. Flags win over the environment.
func (o *globalOptions) setup() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil {
			return fmt.Errorf("%w: env file %s: %v", config.ErrInvalidConfig, o.envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: .env: %v", config.ErrInvalidConfig, err)
	}

	rt, err := config.LoadRuntimeConfig()
	if err != nil {
		return err
	}
	if o.logFormat != "" {
		rt.LogFormat = o.logFormat
	}
	if o.metricsAddr != "" {
		rt.MetricsAddr = o.metricsAddr
	}
	level, err := logger.ParseLevel(rt.LogLevel)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if o.debug {
		level = logger.DEBUG
	}

	logger.SetLevel(level)
	logger.Configure(os.Stderr, rt.LogFormat)
	o.runtime = rt
	return nil
}

// registry resolves llm_node values, sending IRCBOTS_LLM_HEADERS with every
// completion request.
func (o *globalOptions) registry() *providers.Registry {
	return providers.NewRegistry(providers.WithHeaders(o.runtime.LLMHeaders))
}

func newRunCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <config.yml>",
		Short: "Run one bot",
		Long:  "Connect a single bot to its IRC server and keep it online until interrupted.",
		Example: strings.Join([]string{
			"  ircbots run bots/r2d2.yml",
			"  ircbots run --debug --metrics-addr :9100 bots/r2d2.yml",
		}, "\n"),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return err
			}
			return runTeam(cmd.Context(), opts.runtime, opts.registry(), []*config.BotConfig{cfg})
		},
	}
}

func newTeamCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "team <dir|config.yml>...",
		Short: "Run every bot found in the given directories",
		Long: strings.TrimSpace(`Load every *.yml and *.yaml file in the given directories (and any config
files named directly) and run them together in one process. Start-ups are
staggered; a bot that gives up does not stop the others.`),
		Example: strings.Join([]string{
			"  ircbots team bots/",
			"  ircbots team bots/ extra/chewie.yml",
		}, "\n"),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgs, err := config.LoadAll(args...)
			if err != nil {
				return err
			}
			return runTeam(cmd.Context(), opts.runtime, opts.registry(), cfgs)
		},
	}
}

// runTeam runs the bots and, when configured, the metrics server. A metrics
// server that cannot listen stops the team.
func runTeam(ctx context.Context, rt config.RuntimeConfig, registry *providers.Registry, cfgs []*config.BotConfig) error {
	m, err := team.Build(cfgs, registry)
	if err != nil {
		return err
	}
	if rt.MetricsAddr == "" {
		return m.Run(ctx)
	}

	srv := metrics.NewServer(rt.MetricsAddr, m.Ready)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("metrics", "Metrics server failed", map[string]interface{}{
				"addr":  rt.MetricsAddr,
				"error": err.Error(),
			})
			return fmt.Errorf("%w: metrics server on %s: %v", config.ErrInvalidConfig, rt.MetricsAddr, err)
		}
		return nil
	})
	g.Go(func() error {
		err := m.Run(gctx)
		if stopErr := srv.Stop(context.Background()); stopErr != nil {
			logger.WarnCF("metrics", "Metrics server shutdown failed", map[string]interface{}{"error": stopErr.Error()})
		}
		return err
	})
	return g.Wait()
}

func newCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <dir|config.yml>...",
		Short: "Validate bot configs and show the resolved settings",
		Long:  "Load and validate each config without connecting anywhere. Exits non-zero if any config is invalid.",
		Example: strings.Join([]string{
			"  ircbots check bots/r2d2.yml",
			"  ircbots check bots/",
		}, "\n"),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfigs(cmd.OutOrStdout(), providers.NewRegistry(), args...)
		},
	}
}

func checkConfigs(w io.Writer, registry *providers.Registry, paths ...string) error {
	files, err := config.FindConfigs(paths...)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no bot configs found in %s", config.ErrInvalidConfig, strings.Join(paths, ", "))
	}

	var errs []error
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range files {
		cfg, err := config.LoadConfig(f)
		if err != nil {
			fmt.Fprintf(tw, "%s\tINVALID\t%v\n", f, err)
			errs = append(errs, err)
			continue
		}
		var endpoint string
		if ep, err := registry.Resolve(cfg.LLMNode); err != nil {
			endpoint = "unresolved: " + err.Error()
			errs = append(errs, fmt.Errorf("%s: %w: %v", f, config.ErrInvalidConfig, err))
		} else {
			endpoint = ep.BaseURL
		}
		fmt.Fprintf(tw, "%s\tOK\t%s in %s on %s (tls=%t) model=%s llm=%s\n",
			f, cfg.Nick, cfg.Channel, cfg.Address(), cfg.TLS, cfg.Model, endpoint)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  ircbots version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
