// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TojoRicardo/bertillon/internal/config"
)

// NewRootCmd creates the root bertillon command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bertillon",
		Short:         "bertillon - biometric identity resolution for investigation records",
		Long:          "Bertillon manages facial embeddings for a criminal records bureau:\nenrolment, similarity matching, the match journal, and retention enforcement.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			setupLogging(verbose)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newEnrollCmd(),
		newMatchCmd(),
		newBackfillCmd(),
		newSweepCmd(),
		newRecordCmd(),
		newAttemptsCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)

	return root
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves the config file (flag, then standard locations,
// bootstrapping a default on first run), loads it, and applies the
// data-dir flag override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if p, err := config.DefaultConfigPath(); err == nil {
			if _, statErr := os.Stat(p); statErr == nil {
				path = p
			} else if written := config.BootstrapConfig(); written != "" {
				path = written
			}
		}
	}

	if path != "" {
		config.WarnInsecurePermissions(path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}
