/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/clipdeck/internal/version"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Clipdeck version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		if !versionCheck {
			return nil
		}
		info, err := version.Check(cmd.Context(), nil, version.ReleasesURL)
		if err != nil {
			return err
		}
		if info.UpdateAvailable {
			fmt.Fprintf(cmd.OutOrStdout(), "update available: %s %s\n", info.LatestVersion, info.ReleaseURL)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "up to date")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
