package main

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/spf13/cobra"
)

var fmtCmd = &cobra.Command{
	Use:   "fmt FILE...",
	Short: "Rewrite machine definitions in canonical JSON",
	Long: `Prints each machine file in canonical JSON. With -w the file is rewritten in
place (YAML files get a .json sibling); with --check nothing is written and the
command fails if any file is not canonical.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		write, _ := cmd.Flags().GetBool("write")
		check, _ := cmd.Flags().GetBool("check")

		dirty := 0
		for _, path := range args {
			var out io.Writer = os.Stdout
			if check {
				out = io.Discard
			}
			canonical, err := cli.Fmt(out, path, write && !check)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
			if check && !canonical {
				fmt.Println(path)
				dirty++
			}
		}
		if dirty > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(fmtCmd)
	fmtCmd.Flags().BoolP("write", "w", false, "Write the result to the file instead of stdout")
	fmtCmd.Flags().Bool("check", false, "List files that are not canonical and fail if there are any")
}
