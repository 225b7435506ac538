package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/fsmlink/internal/cli"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow the traces of a running machine",
	Long: `Connects as a passive peer and prints every broadcast frame. With --redis the
trace mirror channel is followed instead, so no listener slot is used.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		useRedis, _ := cmd.Flags().GetBool("redis")
		raw, _ := cmd.Flags().GetBool("raw")
		if cmd.Flags().Changed("redis-addr") {
			cfg.Redis.Addr, _ = cmd.Flags().GetString("redis-addr")
		}
		if cmd.Flags().Changed("channel") {
			cfg.Redis.TraceChannel, _ = cmd.Flags().GetString("channel")
		}

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		opts := cli.MonitorOptions{
			Addr:    addr,
			Channel: cfg.Redis.TraceChannel,
			Raw:     raw,
			Out:     os.Stdout,
			Logger:  commandLogger(cmd),
		}
		if useRedis {
			client := backend.NewClient(&backend.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer client.Close()
			opts.Redis = client
		}

		if err := cli.Monitor(ctx, opts); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringP("addr", "a", "localhost:8080", "Listener address")
	monitorCmd.Flags().Bool("redis", false, "Follow the Redis trace mirror instead of the listener")
	monitorCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	monitorCmd.Flags().String("channel", "fsmlink:trace", "Redis trace channel")
	monitorCmd.Flags().Bool("raw", false, "Print wire JSON instead of formatted lines")
}
