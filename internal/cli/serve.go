package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/fsmlink"
	"github.com/aretw0/fsmlink/internal/config"
	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/internal/presentation/tui"
)

// ServeOptions configures Serve.
type ServeOptions struct {
	Config config.Config
	Quiet  bool // suppress the banner and startup messages
	Out    io.Writer
}

// Serve runs the protocol listener (and the admin API, when configured)
// until ctx is cancelled.
func Serve(ctx context.Context, opts ServeOptions) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	cfg := opts.Config

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, level, cfg.Log.Format)

	rt, err := fsmlink.New(cfg, fsmlink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	if err := rt.Listen(); err != nil {
		return err
	}

	if !opts.Quiet {
		tui.PrintBanner(opts.Out, fsmlink.Version)
		printSystemMessage(opts.Out, "Listening on %s (definitions: %s)", rt.Addr(), describeSource(cfg))
		if addr := rt.AdminAddr(); addr != nil {
			printSystemMessage(opts.Out, "Admin API on http://%s", addr)
		}
		if cfg.Redis.Mirror {
			printSystemMessage(opts.Out, "Mirroring traces to redis channel '%s'", cfg.Redis.TraceChannel)
		}
	}

	err = rt.Run(ctx)
	if !opts.Quiet {
		printSystemMessage(opts.Out, "Server stopped.")
	}
	return err
}

func describeSource(cfg config.Config) string {
	switch cfg.Definitions.Source {
	case "redis":
		return fmt.Sprintf("redis %s/%s*", cfg.Redis.Addr, cfg.Redis.Prefix)
	case "loam":
		return "loam " + cfg.Definitions.Dir
	default:
		return cfg.Definitions.Dir
	}
}
