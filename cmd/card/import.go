package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/types"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a transfer package",
	Long: `Import cards from a transfer package file.

Encrypted packages require --password. When conflicts are detected nothing
is persisted: the conflicts are printed and the command exits with code 2
unless --resolve supplies a comma-separated resolution per conflict
(skip, replace, keep_both, merge, version).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		resolveSpec, _ := cmd.Flags().GetString("resolve")

		data, err := os.ReadFile(args[0]) // #nosec G304 - user-supplied input file
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		ctx := context.Background()
		result, err := transfers.Import(ctx, data, password)
		if err != nil {
			return err
		}

		if !result.NeedsResolution {
			logOp("import %s: %d records", args[0], result.Imported)
			if jsonOutput {
				outputJSON(result)
			} else {
				green := color.New(color.FgGreen).SprintFunc()
				fmt.Printf("%s Imported %d card(s)\n", green("✓"), result.Imported)
			}
			return nil
		}

		if resolveSpec == "" {
			if jsonOutput {
				outputJSON(result)
			} else {
				printConflicts(result.Conflicts)
				fmt.Println("\nRe-run with --resolve to apply resolutions, e.g. --resolve version,skip")
			}
			os.Exit(2)
		}

		resolutions := parseResolutions(resolveSpec)
		applied, err := transfers.ResolveAndImport(ctx, result.Pending, resolutions)
		if err != nil {
			return err
		}
		logOp("import %s: %d imported, %d resolutions applied, %d failed",
			args[0], applied.Imported, applied.Applied, applied.Failed)

		if jsonOutput {
			outputJSON(applied)
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		fmt.Printf("%s Imported %d card(s), applied %d resolution(s), skipped %d\n",
			green("✓"), applied.Imported, applied.Applied, applied.Skipped)
		for _, o := range applied.Outcomes {
			if o.Error != "" {
				fmt.Printf("%s conflict %d (%s): %s\n", red("✗"), o.Index, o.Resolution, o.Error)
			}
		}
		if applied.Failed > 0 {
			return fmt.Errorf("%d resolution(s) failed", applied.Failed)
		}
		return nil
	},
}

func printConflicts(conflicts []types.Conflict) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Printf("%s %d conflict(s) detected; nothing was imported:\n\n", yellow("⚠"), len(conflicts))
	for i, c := range conflicts {
		fmt.Printf("%2d. %-14s incoming %s vs existing %s (%s)\n",
			i, c.Kind, c.Incoming.ID, c.Existing.ID, c.Existing.Fields["name"])
	}
}

func parseResolutions(spec string) []types.ImportResolution {
	parts := strings.Split(spec, ",")
	out := make([]types.ImportResolution, 0, len(parts))
	for _, p := range parts {
		out = append(out, types.ImportResolution(strings.TrimSpace(p)))
	}
	return out
}

func init() {
	importCmd.Flags().String("password", "", "Password for encrypted packages")
	importCmd.Flags().String("resolve", "", "Comma-separated resolution per conflict")
	rootCmd.AddCommand(importCmd)
}
