package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Reclaim statement records invisible to every live reader",
	RunE:  runCompact,
}

func runCompact(cmd *cobra.Command, _ []string) error {
	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Compact(); err != nil {
		return err
	}
	fmt.Println("compaction complete")
	return nil
}
