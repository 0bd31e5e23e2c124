package main

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/chararch/gorollup"
	"github.com/chararch/gorollup/adapters/logger"
	"github.com/chararch/gorollup/config"
	"github.com/chararch/gorollup/extensions/snapshot"
)

var (
	// cfgFile holds the path to the configuration file
	cfgFile string

	// cfg is loaded before any subcommand runs
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:           "rollupctl",
		Short:         "Inspect and convert rollup job metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg = loaded
			log, err := logger.New(cfg.Logger)
			if err != nil {
				return err
			}
			gorollup.SetLogger(log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, optional)")

	rootCmd.AddCommand(inspectCommand())
	rootCmd.AddCommand(convertCommand())
	rootCmd.AddCommand(getCommand())
}

// snapshotStore builds the store configured under snapshot
func snapshotStore(c *config.Config) snapshot.Store {
	if c.Snapshot.Kind == config.SnapshotFTP {
		return &snapshot.FTPStore{
			Host:        c.Snapshot.FTP.Host,
			Port:        c.Snapshot.FTP.Port,
			User:        c.Snapshot.FTP.User,
			Password:    c.Snapshot.FTP.Password,
			ConnTimeout: c.Snapshot.FTP.ConnTimeout,
		}
	}
	return &snapshot.LocalStore{Dir: c.Snapshot.Dir}
}

var jsoniterConfig = jsoniter.ConfigCompatibleWithStandardLibrary
