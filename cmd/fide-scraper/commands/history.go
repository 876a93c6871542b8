package commands

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <FIDE_ID>",
	Short: "Prints the monthly ratings of a player recorded in the ledger.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newAppFromFlags(cmd)
		if err != nil {
			return err
		}
		return a.history(cmd.Context(), args[0])
	},
}
