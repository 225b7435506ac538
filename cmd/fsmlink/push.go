package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/aretw0/fsmlink/pkg/adapters/redis"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push FILE...",
	Short: "Upload machine definitions to Redis",
	Long: `Validates each machine file and stores its canonical JSON in Redis, where a
listener started with --source redis can load it by name.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		flags := cmd.Flags()
		if flags.Changed("redis-addr") {
			cfg.Redis.Addr, _ = flags.GetString("redis-addr")
		}
		if flags.Changed("prefix") {
			cfg.Redis.Prefix, _ = flags.GetString("prefix")
		}
		ttl, _ := flags.GetDuration("ttl")

		store := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(ttl),
		)
		defer store.Close()

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		if err := cli.Push(ctx, os.Stdout, store, args); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().String("redis-addr", "localhost:6379", "Redis address")
	pushCmd.Flags().String("prefix", "fsmlink:def:", "Key prefix for stored definitions")
	pushCmd.Flags().Duration("ttl", 0, "Expire pushed definitions after this long (0 keeps them)")
}
