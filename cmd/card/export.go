package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/transfer"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export cards as a transfer package",
	Long: `Build a transfer package from the whole store or an explicit ID list.

With --password the package is encrypted (PBKDF2 + AES-GCM); without it the
package is plaintext JSON. Output goes to stdout unless -o is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		password, _ := cmd.Flags().GetString("password")
		ids, _ := cmd.Flags().GetString("ids")

		opts := transfer.ExportOptions{Password: password}
		if ids != "" {
			opts.CardIDs = strings.Split(ids, ",")
		}

		data, err := transfers.Export(context.Background(), opts)
		if err != nil {
			return err
		}

		if output == "" {
			_, err = os.Stdout.Write(data)
			return err
		}

		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", output, err)
		}
		if !jsonOutput {
			green := color.New(color.FgGreen).SprintFunc()
			encrypted := ""
			if password != "" {
				encrypted = " (encrypted)"
			}
			fmt.Printf("%s Exported to %s%s\n", green("✓"), output, encrypted)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().String("password", "", "Encrypt the package with this password")
	exportCmd.Flags().String("ids", "", "Comma-separated card IDs (default: entire store)")
	rootCmd.AddCommand(exportCmd)
}
