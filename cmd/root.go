// Package cmd holds the cobra command tree for threadwatch.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/threadwatch/internal/app"
	"github.com/JakeFAU/threadwatch/internal/config"
	"github.com/JakeFAU/threadwatch/internal/logging"
	"github.com/JakeFAU/threadwatch/internal/watch"
)

// Process exit codes.
const (
	ExitOK     = 0
	ExitConfig = 1
	ExitFetch  = 2
	ExitRun    = 3
)

// cli carries state shared by every subcommand. PersistentPreRunE fills in
// cfg and logger before any RunE executes.
type cli struct {
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
	appOpts []app.Option
}

// newRootCmd creates and configures the root command. Running it without a
// subcommand performs a check.
func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threadwatch",
		Short: "Notify a webhook when a discussion thread gets new replies.",
		Long: `threadwatch fetches a thread page, finds the highest reply number on it and
posts a message to a webhook when that number has grown since the last run.
Each invocation performs one check and exits; schedule it with cron or similar.`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(newCheckCmd(c))
	cmd.AddCommand(newStateCmd(c))
	cmd.AddCommand(newExtractCmd(c))
	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, args, stdout, stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) int {
	c := &cli{appOpts: opts}
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	if c.logger != nil {
		c.logger.Error("threadwatch failed", zap.Error(err))
		_ = c.logger.Sync()
	} else {
		fmt.Fprintf(stderr, "threadwatch: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, watch.ErrConfig), errors.Is(err, errUsage):
		return ExitConfig
	case errors.Is(err, watch.ErrFetchFailed),
		errors.Is(err, watch.ErrTooManyRedirects),
		errors.Is(err, watch.ErrInsecureURL),
		watch.IsTransport(err, "fetch"):
		return ExitFetch
	default:
		return ExitRun
	}
}

var errUsage = errors.New("usage")

// usageArgs tags positional argument failures, including unknown
// subcommands, as usage errors.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}
