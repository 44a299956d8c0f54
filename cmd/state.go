package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/threadwatch/internal/app"
)

func newStateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or override the stored watermark",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored watermark",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.ValidateState(); err != nil {
				return err
			}
			store, closeStore, err := app.OpenStore(cmd.Context(), c.cfg.State)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			last, err := store.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load watermark: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), last)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set N",
		Short: "Overwrite the stored watermark with N",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			last, err := strconv.Atoi(args[0])
			if err != nil || last < 0 {
				return fmt.Errorf("%w: watermark must be a non-negative integer, got %q", errUsage, args[0])
			}
			if err := c.cfg.ValidateState(); err != nil {
				return err
			}
			store, closeStore, err := app.OpenStore(cmd.Context(), c.cfg.State)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			if err := store.Save(cmd.Context(), last); err != nil {
				return fmt.Errorf("save watermark: %w", err)
			}
			c.logger.Info("watermark overwritten", zap.Int("last", last))
			fmt.Fprintln(cmd.OutOrStdout(), last)
			return nil
		},
	})
	return cmd
}
