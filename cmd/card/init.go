package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/storage/sqlite"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a card store in the current directory",
	Long: `Create a .cardstore/ directory with a new SQLite database.

Commands run from this directory or any subdirectory will find the store
automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		storeDir := filepath.Join(".", ".cardstore")
		path := filepath.Join(storeDir, "cards.db")

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("store already exists at %s", path)
		}

		s, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("failed to create store: %w", err)
		}
		defer func() { _ = s.Close() }()

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Initialized card store at %s\n", green("✓"), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
