package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// serveCmd intentionally does not start a network listener: the hosting
// server and its protocol surface are external collaborators of the
// storage core, not part of this module. The subcommand exists so the
// CLI's shape matches an embeddable store's usual demo/serve split,
// while being explicit about what's out of scope here.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Explain why this build has no network server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return fmt.Errorf("triplecore's storage core exposes pattern-scan and transaction primitives only; " +
			"wire a query evaluator and transport on top of pkg/store to serve requests")
	},
}
