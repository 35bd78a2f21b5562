package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/version"
)

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a card's version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := versions.History(context.Background(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(history)
			return nil
		}
		if len(history) == 0 {
			fmt.Println("No history recorded.")
			return nil
		}
		for _, snap := range history {
			fmt.Printf("v%-6s %s  %s\n", snap.Version, snap.Timestamp.Format("2006-01-02 15:04:05"), snap.ChangeDescription)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <id>",
	Short: "Validate the integrity of a card's snapshots",
	Long: `Recompute each snapshot's checksum and compare with the stored value.
Snapshots failing the check are reported as corrupt; corrupt snapshots are
never used for merge operations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := versions.History(context.Background(), args[0])
		if err != nil {
			return err
		}

		type report struct {
			Position int    `json:"position"`
			Version  string `json:"version"`
			Valid    bool   `json:"valid"`
		}
		reports := make([]report, 0, len(history))
		corrupt := 0
		for i, snap := range history {
			ok := version.ValidateIntegrity(snap)
			if !ok {
				corrupt++
			}
			reports = append(reports, report{Position: i, Version: snap.Version, Valid: ok})
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"snapshots": reports,
				"corrupt":   corrupt,
			})
			if corrupt > 0 {
				return fmt.Errorf("%d corrupt snapshot(s)", corrupt)
			}
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		for _, r := range reports {
			mark := green("✓")
			if !r.Valid {
				mark = red("✗ corrupt")
			}
			fmt.Printf("v%-6s %s\n", r.Version, mark)
		}
		if corrupt > 0 {
			return fmt.Errorf("%d corrupt snapshot(s)", corrupt)
		}
		fmt.Printf("%s All %d snapshot(s) intact\n", green("✓"), len(history))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd, verifyCmd)
}
