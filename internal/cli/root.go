// Package cli holds the handscan commands.
package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/bdougie/handscan/internal/config"
)

// app is what every command gets after the persistent pre-run
type app struct {
	configPath string
	verbose    bool
	cfg        config.Config
	logger     *slog.Logger
	logOut     io.Writer
}

func NewRootCmd() *cobra.Command {
	a := &app{logOut: os.Stderr}

	cmd := &cobra.Command{
		Use:   "handscan",
		Short: "Guided hand capture client for HandScan",
		Long: `handscan walks a person through a hand scan: it asks for consent, opens
the camera, streams frames to the analyzer until it takes a picture, then
shows the age and gender estimate.

Records can be corrected or withdrawn afterwards with the confirm and delete
commands.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Verbose = true
			}
			a.cfg = cfg
			a.logger = newLogger(a.logOut, cfg.Verbose)
			slog.SetDefault(a.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newScanCmd(a))
	cmd.AddCommand(newConfirmCmd(a))
	cmd.AddCommand(newDeleteCmd(a))
	cmd.AddCommand(newHistoryCmd(a))

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
}
