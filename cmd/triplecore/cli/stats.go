package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print store-wide statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("explicit live statements:  %d\n", stats.ExplicitLive)
	fmt.Printf("inferred live statements:  %d\n", stats.InferredLive)
	fmt.Printf("current snapshot version:  %d\n", stats.CurrentVersion)
	fmt.Printf("live reader snapshots:     %d\n", stats.LiveSnapshots)
	fmt.Printf("interned terms:            %d\n", stats.TermCount)
	return nil
}
