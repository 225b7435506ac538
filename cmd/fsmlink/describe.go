package main

import (
	"fmt"
	"os"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/spf13/cobra"
)

// describeCmd represents the describe command
var describeCmd = &cobra.Command{
	Use:   "describe FILE",
	Short: "Summarize a machine definition",
	Long:  `Prints the bindings, states and transitions of a machine as Markdown, followed by a Mermaid state diagram.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		raw, _ := cmd.Flags().GetBool("raw")
		notesPath, _ := cmd.Flags().GetString("notes")

		var notes string
		if notesPath != "" {
			data, err := os.ReadFile(notesPath)
			if err != nil {
				fmt.Printf("Error reading notes: %v\n", err)
				os.Exit(1)
			}
			notes = string(data)
		}

		err := cli.Describe(os.Stdout, cli.DescribeOptions{
			Path:    args[0],
			Notes:   notes,
			Mermaid: mermaid,
			Raw:     raw,
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().Bool("mermaid", false, "Print only the Mermaid state diagram")
	describeCmd.Flags().Bool("raw", false, "Print Markdown without terminal rendering")
	describeCmd.Flags().String("notes", "", "Markdown file shown under the title")
}
