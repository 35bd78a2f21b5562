package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iim0663418/cardstore/internal/transfer"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Generate or check a device pairing code",
	Long: `Generate a 6-character pairing code for manual device pairing, or check
one with --check. Pairing codes are session labels, not credentials.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetString("check")
		if check != "" {
			valid := transfer.ValidatePairingCode(check)
			if jsonOutput {
				outputJSON(map[string]interface{}{"code": check, "valid": valid})
			} else if valid {
				fmt.Printf("%s is a valid pairing code\n", check)
			} else {
				fmt.Printf("%s is not a valid pairing code\n", check)
			}
			return nil
		}

		code, err := transfer.GeneratePairingCode()
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"code": code})
		} else {
			fmt.Println(code)
		}
		return nil
	},
}

func init() {
	pairCmd.Flags().String("check", "", "Validate a pairing code instead of generating one")
	rootCmd.AddCommand(pairCmd)
}
