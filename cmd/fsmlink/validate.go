package main

import (
	"fmt"
	"os"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check machine definitions for consistency",
	Long: `Parses each machine file and checks it the way the runtime does on load:
one initial state, known states and bindings, well-formed delays. Unreachable
states and similar smells are reported as warnings.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := cli.Validate(os.Stdout, args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
