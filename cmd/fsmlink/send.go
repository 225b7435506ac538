package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/spf13/cobra"
)

// sendCmd groups the one-shot protocol commands.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one protocol message to a running listener",
	Long: `Connects to a listener, sends a single message and prints what is broadcast
back until the reply arrives. Use --linger to keep following the traces the
message causes.`,
}

var sendLoadCmd = &cobra.Command{
	Use:   "load NAME",
	Short: "Load a machine definition (JSON message)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSend(cmd, protocol.NewJSON(args[0]))
	},
}

var sendInputCmd = &cobra.Command{
	Use:   "input NAME VALUE",
	Short: "Inject an input event (INPUT message)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSend(cmd, protocol.NewInput(args[0], args[1]))
	},
}

var sendStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running machine (STOP message)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSend(cmd, protocol.NewStop())
	},
}

var sendRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Ask which machine is loaded (REQUEST message)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSend(cmd, protocol.NewRequest())
	},
}

func runSend(cmd *cobra.Command, msg protocol.Message) {
	addr, _ := cmd.Flags().GetString("addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	linger, _ := cmd.Flags().GetDuration("linger")
	raw, _ := cmd.Flags().GetBool("raw")

	ctx := cli.NewSignalContext(context.Background())
	defer ctx.Cancel()

	err := cli.Send(ctx, cli.SendOptions{
		Addr:    addr,
		Message: msg,
		Timeout: timeout,
		Linger:  linger,
		Raw:     raw,
		Out:     os.Stdout,
		Logger:  commandLogger(cmd),
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.AddCommand(sendLoadCmd, sendInputCmd, sendStopCmd, sendRequestCmd)

	sendCmd.PersistentFlags().StringP("addr", "a", "localhost:8080", "Listener address")
	sendCmd.PersistentFlags().Duration("timeout", 5*time.Second, "How long to wait for the reply")
	sendCmd.PersistentFlags().Duration("linger", 0, "How long to keep printing traces after the reply")
	sendCmd.PersistentFlags().Bool("raw", false, "Print wire JSON instead of formatted lines")
}
