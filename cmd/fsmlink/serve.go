package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the protocol listener",
	Long: `Starts the fsmlink runtime: a TCP listener speaking the line-framed JSON
protocol, plus the optional admin HTTP API and Redis trace mirror.
Flags override the configuration file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		flags := cmd.Flags()

		if flags.Changed("listen") {
			cfg.Listen, _ = flags.GetString("listen")
		}
		if flags.Changed("admin") {
			cfg.Admin, _ = flags.GetString("admin")
		}
		if flags.Changed("dir") {
			cfg.Definitions.Dir, _ = flags.GetString("dir")
		}
		if flags.Changed("source") {
			cfg.Definitions.Source, _ = flags.GetString("source")
		}
		if flags.Changed("redis-addr") {
			cfg.Redis.Addr, _ = flags.GetString("redis-addr")
		}
		if flags.Changed("mirror") {
			cfg.Redis.Mirror, _ = flags.GetBool("mirror")
		}
		if flags.Changed("max-connections") {
			cfg.Transport.MaxConnections, _ = flags.GetInt("max-connections")
		}
		if err := cfg.Validate(); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		quiet, _ := flags.GetBool("quiet")

		ctx := cli.NewSignalContext(context.Background())
		defer ctx.Cancel()

		if err := cli.Serve(ctx, cli.ServeOptions{Config: cfg, Quiet: quiet}); err != nil {
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)
		}
		if sig := ctx.Signal(); sig != nil && !quiet {
			fmt.Printf("Stopped by signal: %v\n", sig)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", ":8080", "Protocol listen address")
	serveCmd.Flags().String("admin", "", "Admin HTTP API address (disabled when empty)")
	serveCmd.Flags().StringP("dir", "d", ".", "Directory holding machine definitions")
	serveCmd.Flags().String("source", "file", "Definition source: file, redis or loam")
	serveCmd.Flags().String("redis-addr", "localhost:6379", "Redis address for the redis source and the trace mirror")
	serveCmd.Flags().Bool("mirror", false, "Publish every trace on the Redis trace channel")
	serveCmd.Flags().Int("max-connections", 0, "Maximum concurrent peers (0 is unbounded)")
	serveCmd.Flags().BoolP("quiet", "q", false, "Suppress the banner and startup messages")
}
