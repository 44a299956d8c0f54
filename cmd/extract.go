package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/threadwatch/internal/extract"
)

func newExtractCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILE",
		Short: "Run the reply index extractor against a saved page",
		Long: `extract reads a saved copy of the thread page and prints the reply index the
check command would see, along with the extraction tier that produced it. Use it
when a check logs that no reply index was found.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			markup, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: read %s: %v", errUsage, args[0], err)
			}
			res := extract.New(c.cfg.Extract.Markers).Extract(string(markup))
			tier := res.Tier
			if !res.Found {
				tier = "none"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index: %d\ntier: %s\n", res.Index, tier)
			return nil
		},
	}
}
