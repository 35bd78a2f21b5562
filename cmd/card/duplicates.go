package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/config"
	"github.com/iim0663418/cardstore/internal/dedup"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find duplicate cards by content fingerprint",
	Long: `Group cards by identity fingerprint (normalized name + email) and report
groups with more than one member, with suggested actions.

Example:
  card duplicates          # Show all duplicate groups
  card duplicates --json   # Machine-readable report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cards, err := store.ListCards(ctx)
		if err != nil {
			return err
		}

		results := detector.DetectBatch(ctx, cards)

		seen := make(map[string]bool)
		var groups []*dedup.Detection
		for _, r := range results {
			if r.Err != nil || r.Detection == nil || !r.Detection.IsDuplicate {
				continue
			}
			if seen[r.Detection.Digest] {
				continue
			}
			seen[r.Detection.Digest] = true
			groups = append(groups, r.Detection)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"duplicate_groups": len(groups),
				"groups":           groups,
			})
			return nil
		}

		if len(groups) == 0 {
			fmt.Println("No duplicates found!")
			return nil
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s Found %d duplicate group(s):\n\n", yellow("🔍"), len(groups))
		for i, g := range groups {
			fmt.Printf("%s Group %d (%s…)\n", cyan("━━"), i+1, g.Digest[:16])
			for _, m := range g.Matches {
				fmt.Printf("   %s  %s (modified %s)\n", m.ID, m.Fields["name"], m.ModifiedAt.Format("2006-01-02"))
			}
		}
		fmt.Printf("\n%s Run 'card cleanup --dry-run' to preview removal\n", cyan("💡"))
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete duplicate cards, keeping the newest per group",
	Long: `Within each fingerprint group, keep the most recently modified card and
delete the rest, bounded by --max deletions per group.

Example:
  card cleanup --dry-run   # Report the plan without deleting
  card cleanup --max 5     # Delete at most 5 duplicates per group`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		maxDup, _ := cmd.Flags().GetInt("max")
		if maxDup == 0 {
			maxDup = config.GetInt("cleanup.max-duplicates")
		}

		result, err := detector.Cleanup(context.Background(), dedup.CleanupOptions{
			DryRun:        dryRun,
			MaxDuplicates: maxDup,
		})
		if err != nil {
			return err
		}
		if !dryRun {
			logOp("cleanup: deleted %d duplicates", result.Deleted)
		}

		if jsonOutput {
			outputJSON(result)
			return nil
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		for _, g := range result.Groups {
			fmt.Printf("keep %s, delete %v\n", g.KeepID, g.DeleteIDs)
		}
		if dryRun {
			fmt.Printf("%s Dry run - %d card(s) slated for deletion\n", yellow("⚠"), result.Planned)
		} else {
			fmt.Printf("%s Deleted %d duplicate(s)\n", green("✓"), result.Deleted)
			for id, msg := range result.Errors {
				fmt.Printf("  failed %s: %s\n", id, msg)
			}
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show duplicate statistics for the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := detector.Stats(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(stats)
			return nil
		}
		fmt.Printf("Total cards:          %d\n", stats.TotalCards)
		fmt.Printf("Unique fingerprints:  %d\n", stats.UniqueFingerprints)
		fmt.Printf("Duplicate groups:     %d\n", stats.DuplicateGroups)
		fmt.Printf("Duplicate cards:      %d\n", stats.DuplicateCards)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "Show what would be deleted without making changes")
	cleanupCmd.Flags().Int("max", 0, "Max deletions per fingerprint group (default from config)")
	rootCmd.AddCommand(duplicatesCmd, cleanupCmd, statsCmd)
}
