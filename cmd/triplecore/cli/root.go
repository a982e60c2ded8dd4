// Package cli wires the triplecore command-line tool's subcommands onto
// the storage core. It exercises the store's pattern-scan primitives
// directly; the query language parser/evaluator is an external
// collaborator and has no presence here.
//
// Grounded on ValentinKolb-dKV/cmd/root.go's cobra root plus
// PersistentFlags-bound-through-viper idiom, and cmd/serve/root.go's
// PreRunE config-processing split.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/triplecore/triplecore/internal/events"
	"github.com/triplecore/triplecore/pkg/store"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "triplecore",
	Short: "An in-memory, optionally persistent RDF statement store",
	Long: fmt.Sprintf(`triplecore (v%s)

An embeddable triple store exposing pattern-scan reads and transactional
writes at isolation levels from NONE through SERIALIZABLE. This CLI
drives the storage core directly for inspection and demos; it does not
implement a query language.`, version),
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("data-dir", "./triplecore-data", "directory for persistence files")
	rootCmd.PersistentFlags().Bool("persist", true, "enable file-backed persistence")
	rootCmd.PersistentFlags().Int("sync-delay-ms", 0, "0 = sync immediately, >0 = coalesce, <0 = defer to shutdown")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(demoCmd, statsCmd, compactCmd, serveCmd)
}

func initConfig() {
	viper.SetEnvPrefix("TRIPLECORE")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	cfg := store.Config{
		Persist:     viper.GetBool("persist"),
		DataDir:     viper.GetString("data-dir"),
		SyncDelayMs: viper.GetInt("sync-delay-ms"),
	}

	logger := newLogger()
	s, err := store.New(cfg, events.NewSlogObserver(logger))
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
