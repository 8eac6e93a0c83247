package collection

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/birdlens/birdlens/cmd/output"
	store "github.com/birdlens/birdlens/internal/collection"
	"github.com/birdlens/birdlens/internal/conf"
)

// Command creates the collection command that lists an owner's verified birds.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "collection <owner>",
		Short: "List the birds in an owner's collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := store.Open(cmd.Context(), &settings.Collection, nil)
			if err != nil {
				return err
			}
			defer func() { _ = entries.Close() }()

			owner := args[0]
			list, err := entries.List(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			total, err := entries.Count(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return output.JSON(out, list)
			}

			rows := make([][]string, 0, len(list))
			for _, e := range list {
				rows = append(rows, []string{e.CreatedAt.Local().Format(time.DateTime), e.CommonName, e.ScientificName, e.ImageURL})
			}
			_, err = fmt.Fprintf(out, "%s\n%d of %d entries\n",
				output.Table([]string{"Added", "Common Name", "Scientific Name", "Image"}, rows), len(list), total)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "Maximum number of entries to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}
