// Package rankctl implements the operator command line for the ranking
// service: schema migrations, dataset toggles, cutovers and ranking reads
// against the configured store without running the HTTP server.
package rankctl

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	service "github.com/okian/pcarank/internal/app"
	"github.com/okian/pcarank/internal/config"
	"github.com/okian/pcarank/pkg/logger"
)

// All linker flags are set at build time.
var (
	version = "dev"
	commit  = "none"
)

// CLI holds the state shared by every subcommand.
type CLI struct {
	out     io.Writer
	errOut  io.Writer
	cfg     *config.Config
	log     logger.Logger
	svcOpts []service.Option

	configFile string
	logLevel   string
	noColor    bool
}

// New returns a CLI writing to stdout and stderr unless overridden.
func New(opts ...Option) *CLI {
	c := &CLI{out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Command builds the cobra command tree.
func (c *CLI) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "rankctl",
		Short: "Operate the Philippine WCA ranking service.",
		Long: `rankctl runs maintenance against the ranking store directly: schema
migrations, dataset cutovers and toggles, recomputes and ranking reads.
loadtest drives a running server instead.

Configuration is read the same way as the server: defaults, then the YAML
file named by PCARANK_CONFIG (or --config), then PCARANK_* variables.`,
		Version:            version + " (" + commit + ")",
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableSuggestions: true,
		PersistentPreRunE:  c.setup,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "YAML config file (overrides PCARANK_CONFIG)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.migrateCommand(),
		c.datasetCommand(),
		c.cutoverCommand(),
		c.rankingsCommand(),
		c.recomputeCommand(),
		c.loadTestCommand(),
	)
	return root
}

// Execute runs the command tree with args and prints a failure to errOut.
func (c *CLI) Execute(ctx context.Context, args []string) error {
	root := c.Command()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(c.errOut, failColor.Sprint("error: ")+err.Error())
		return err
	}
	return nil
}

// setup loads configuration and logging once for whichever command runs.
func (c *CLI) setup(_ *cobra.Command, _ []string) error {
	if c.noColor {
		color.NoColor = true
	}

	if c.cfg == nil {
		if c.configFile != "" {
			if err := os.Setenv(config.EnvPrefix+"CONFIG", c.configFile); err != nil {
				return err
			}
		}
		cfg, err := config.Load(context.Background())
		if err != nil {
			return err
		}
		c.cfg = cfg
	}
	if c.logLevel != "" {
		c.cfg.LogLevel = c.logLevel
	}

	if c.log == nil {
		// Logs go to stderr so command output stays pipeable.
		if err := logger.Init(logger.WithFormat(c.cfg.LogFormat), logger.WithOutput(c.errOut), logger.WithSource(false)); err != nil {
			return err
		}
		if err := logger.SetLevelString(c.cfg.LogLevel); err != nil {
			return err
		}
		c.log = logger.Get().Named("rankctl")
	}
	return nil
}

// withService starts a short-lived service for fn. The cutover schedule
// is disabled and a single worker serves the queue.
func (c *CLI) withService(ctx context.Context, fn func(ctx context.Context, svc *service.Service) error) error {
	cfg := *c.cfg
	cfg.CutoverInterval = 0
	cfg.WorkerCount = 1

	opts := append([]service.Option{
		service.WithConfig(&cfg),
		service.WithLogger(c.log.Named("service")),
	}, c.svcOpts...)
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Stop()

	return fn(ctx, svc)
}
