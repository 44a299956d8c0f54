package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/threadwatch/internal/app"
	"github.com/JakeFAU/threadwatch/internal/watch"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch the thread once and notify if new replies appeared",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (c *cli) runCheck(ctx context.Context, out io.Writer) error {
	a, err := app.New(ctx, c.cfg, c.logger, c.appOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.Check(ctx)
	if err != nil {
		return err
	}
	switch outcome.Status {
	case watch.StatusNotified:
		fmt.Fprintf(out, "notified: %d new replies (index %d)\n", outcome.Delta, outcome.Current)
	default:
		fmt.Fprintf(out, "no change (index %d)\n", outcome.Previous)
	}
	return nil
}
