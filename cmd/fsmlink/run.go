package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Execute a machine locally",
	Long: `Runs a machine file in this process and prints its traces. Each stdin line is
either name=value, which injects an input, or q to quit. With --publish the
traces are also streamed to a listener so remote monitors can follow along.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publish, _ := cmd.Flags().GetString("publish")
		raw, _ := cmd.Flags().GetBool("raw")
		linger, _ := cmd.Flags().GetDuration("linger")
		scriptTimeout, _ := cmd.Flags().GetDuration("script-timeout")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		err := cli.Run(ctx, cli.RunOptions{
			Path:          args[0],
			Publish:       publish,
			In:            os.Stdin,
			Out:           os.Stdout,
			Raw:           raw,
			Linger:        linger,
			ScriptTimeout: scriptTimeout,
			Logger:        commandLogger(cmd),
		})
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("publish", "", "Listener address to stream traces to")
	runCmd.Flags().Bool("raw", false, "Print wire JSON instead of formatted lines")
	runCmd.Flags().Duration("linger", 0, "Keep running this long after stdin ends, so delayed transitions can fire")
	runCmd.Flags().Duration("script-timeout", time.Second, "Abort a guard or action after this long")
}
