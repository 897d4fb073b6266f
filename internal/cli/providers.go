package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skyarchive/museum-dl/internal/config"
	"github.com/skyarchive/museum-dl/internal/provider"
)

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the supported museum providers and their credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMUSEUM\tCREDENTIAL\tCONFIGURED")
			for _, info := range provider.Catalog {
				credential := "none required"
				configured := "yes"
				if info.NeedsKey {
					credential = info.KeyEnv
					configured = config.Redact(settings.KeyFor(info.Name))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", info.Name, info.Museum, credential, configured)
			}
			return w.Flush()
		},
	}
}
