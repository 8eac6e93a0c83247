package identify

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/birdlens/birdlens/cmd/output"
	"github.com/birdlens/birdlens/internal/app"
	"github.com/birdlens/birdlens/internal/buildinfo"
	"github.com/birdlens/birdlens/internal/conf"
	"github.com/birdlens/birdlens/internal/pipeline"
)

// Command creates the identify command that runs one photo through the pipeline.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		owner  string
		region string
		asJSON bool
		notify bool
	)

	cmd := &cobra.Command{
		Use:   "identify <image>",
		Short: "Identify the bird in a photo and add it to a collection",
		Long: "Identify the bird in a photo, verify it against the region's species list and, " +
			"when verified, store the photo and add the species to the owner's collection.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read image: %w", err)
			}

			want := app.All
			want.Observers = notify
			a, err := app.New(cmd.Context(), settings, build, want)
			if err != nil {
				return err
			}
			defer a.Close()

			outcome, runErr := a.Pipeline.Run(cmd.Context(), pipeline.Request{
				Image:      data,
				OwnerID:    owner,
				RegionCode: region,
			})
			if asJSON {
				if err := output.JSON(cmd.OutOrStdout(), outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner whose collection receives the bird")
	cmd.Flags().StringVar(&region, "region", "", "eBird region code, e.g. US-NY (default: identification.defaultregion)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcome as JSON")
	cmd.Flags().BoolVar(&notify, "notify", false, "Publish the saved entry over MQTT and notifications")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func printOutcome(w io.Writer, outcome *pipeline.Outcome) {
	if outcome == nil {
		return
	}
	switch outcome.State {
	case pipeline.StateDone:
		_, _ = fmt.Fprintf(w, "Added %s (%s) to the collection\n", outcome.Species.CommonName, outcome.Species.ScientificName)
		if outcome.Entry != nil {
			_, _ = fmt.Fprintf(w, "  slot:   %s\n", outcome.Entry.SlotID)
		}
		if outcome.ImageURL != "" {
			_, _ = fmt.Fprintf(w, "  image:  %s\n", outcome.ImageURL)
		}
	case pipeline.StateRejected:
		_, _ = fmt.Fprintf(w, "Not added: model suggested %s (%s)\n", outcome.Species.CommonName, outcome.Species.ScientificName)
	}
	if outcome.Message != "" {
		_, _ = fmt.Fprintln(w, outcome.Message)
	}
}
