package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/types"
	"github.com/iim0663418/cardstore/internal/version"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new card",
	Long: `Create a card from --field key=value pairs. Bilingual fields may use
the ~ delimiter, e.g. --field "name=吳志明~Wu Chih-Ming".

Duplicate detection runs first; a detected duplicate is reported together
with suggested actions unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		fieldArgs, _ := cmd.Flags().GetStringArray("field")
		force, _ := cmd.Flags().GetBool("force")

		fields := make(map[string]string)
		for _, f := range fieldArgs {
			k, v, found := strings.Cut(f, "=")
			if !found {
				return fmt.Errorf("invalid --field %q (want key=value)", f)
			}
			fields[k] = v
		}

		card := &types.CardRecord{
			ID:      uuid.NewString(),
			Kind:    types.CardKind(kind),
			Fields:  fields,
			Version: version.InitialVersion,
		}
		if err := card.Validate(); err != nil {
			return err
		}

		ctx := context.Background()
		det, err := detector.Detect(ctx, card)
		if err != nil {
			return err
		}
		if det.IsDuplicate && !force {
			if jsonOutput {
				outputJSON(det)
			} else {
				yellow := color.New(color.FgYellow).SprintFunc()
				fmt.Printf("%s Possible duplicate of %d existing card(s):\n", yellow("⚠"), len(det.Matches))
				for _, m := range det.Matches {
					fmt.Printf("  %s  %s\n", m.ID, m.Fields["name"])
				}
				fmt.Println("Use --force to create anyway, or 'card duplicates' to review.")
			}
			return nil
		}

		res, err := detector.Resolve(ctx, card, types.ActionVersion, "")
		if err != nil {
			return err
		}
		logOp("create %s", res.CardID)

		if jsonOutput {
			outputJSON(res)
		} else {
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Created card %s (v%s)\n", green("✓"), res.CardID, res.Version)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cards",
	RunE: func(cmd *cobra.Command, args []string) error {
		cards, err := store.ListCards(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(cards)
			return nil
		}
		for _, c := range cards {
			name := types.ParseBilingual(c.Fields["name"])
			fmt.Printf("%s  v%-5s  %s\n", c.ID, c.Version, name.Primary)
		}
		if len(cards) == 0 {
			fmt.Println("No cards stored.")
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		card, err := store.GetCard(context.Background(), args[0])
		if err != nil {
			return err
		}
		if card == nil {
			return fmt.Errorf("card %s: %w", args[0], types.ErrNotFound)
		}
		if jsonOutput {
			outputJSON(card)
			return nil
		}
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s (%s, v%s)\n", cyan("━━"), card.ID, card.Kind, card.Version)
		for k, v := range card.Fields {
			fmt.Printf("  %-14s %s\n", k+":", v)
		}
		fmt.Printf("  %-14s %s\n", "modified:", card.ModifiedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.DeleteCard(context.Background(), args[0]); err != nil {
			return err
		}
		logOp("delete %s", args[0])
		if !jsonOutput {
			fmt.Printf("Deleted %s\n", args[0])
		}
		return nil
	},
}

func init() {
	createCmd.Flags().String("kind", string(types.KindPersonal), "Card kind (layout template)")
	createCmd.Flags().StringArray("field", nil, "Card field as key=value (repeatable)")
	createCmd.Flags().Bool("force", false, "Create even if a duplicate is detected")
	rootCmd.AddCommand(createCmd, listCmd, showCmd, deleteCmd)
}
