package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/pevans/auctionscan/config"
	"github.com/pevans/auctionscan/logger"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the root command has run
// its setup.
type app struct {
	cfgFile string
	envFile string
	debug   bool

	cfg *config.Config
	log logger.Interface
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "auctionscan",
		Short:         "Crawl closed auctions into a spreadsheet",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ~/.auctionscan/config.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newCrawlCommand(a),
		newConditionsCommand(a),
		newDateCommand(a),
		newPriceCommand(a),
	)
	return root
}

// setup loads the dotenv file, the configuration and the logger.
func (a *app) setup() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", a.envFile, err)
		}
	}

	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Logger.Level = logger.DebugLevel
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}
