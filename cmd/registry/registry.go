package registry

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/birdlens/birdlens/cmd/output"
	"github.com/birdlens/birdlens/internal/app"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
)

// Command creates the registry command that lists the species recorded in a region.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "registry <region>",
		Short: "List the species recorded in an eBird region",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), settings, build, app.Components{})
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Registry.FetchRegistry(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return output.JSON(out, entries)
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.SpeciesCode, e.CommonName, e.ScientificName, e.FamilyCommonName})
			}
			_, err = fmt.Fprintf(out, "%s\n%d species\n",
				output.Table([]string{"Code", "Common Name", "Scientific Name", "Family"}, rows), len(entries))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the registry as JSON")
	return cmd
}
