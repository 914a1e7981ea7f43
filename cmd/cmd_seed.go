// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/locacash/sitescore/store"
)

var seedUser string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Moves historical analyses between the store and JSON seed files",
}

var seedImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Scores every record of a seed file and saves it in the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if repo == nil {
			return errors.New("the store is disabled (store.driver=none)")
		}
		defer repo.Close()

		report, err := store.ImportSeed(cmd.Context(), repo, args[0], seedUser, time.Now().UTC())
		if err != nil {
			return err
		}

		printer.Fprintf(cmd.OutOrStdout(), "Imported %d analyses from %s (%d skipped)\n",
			report.Imported, args[0], report.Skipped)

		return nil
	},
}

var seedExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Writes every stored analysis to a seed file",
	Long: `Writes every stored analysis to a seed file. Each record keeps its owner,
favorite flag and weights, so importing the file restores the analyses to
the same users.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		if repo == nil {
			return errors.New("the store is disabled (store.driver=none)")
		}
		defer repo.Close()

		n, err := store.ExportSeed(cmd.Context(), repo, args[0])
		if err != nil {
			return err
		}

		printer.Fprintf(cmd.OutOrStdout(), "Exported %d analyses to %s\n", n, args[0])

		return nil
	},
}

func init() {
	seedImportCmd.Flags().StringVar(&seedUser, "user", "seed", "user id for records that carry no owner")

	seedCmd.AddCommand(seedImportCmd, seedExportCmd)
	rootCmd.AddCommand(seedCmd)
}
