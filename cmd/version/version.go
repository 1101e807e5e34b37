package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/deploy-v1/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the deploy CLI.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("version: %s\n", version.Version)
		},
	}
}
