package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/fsmlink"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of fsmlink",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fsmlink version %s\n", strings.TrimSpace(fsmlink.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
