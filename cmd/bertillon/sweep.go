// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bertillon Contributors

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the retention expiry sweep",
		Long: "Run one expiry sweep, transitioning every record whose retention\n" +
			"period has lapsed to pending_deletion. With --watch the sweep repeats\n" +
			"on the configured interval until interrupted.",
		RunE: runSweep,
	}

	cmd.Flags().Bool("watch", false, "keep sweeping on the configured interval")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bureau, err := WireBureau(cfg, nil)
	if err != nil {
		return err
	}
	defer bureau.Close() //nolint:errcheck // exiting

	watch, _ := cmd.Flags().GetBool("watch")
	if watch {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		bureau.Sweeper.Run(ctx)
		return nil
	}

	count, err := bureau.Sweeper.SweepOnce(cmd.Context())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "sweep transitioned %d record(s) to pending_deletion\n", count)
	return err
}
