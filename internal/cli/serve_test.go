package cli_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/fsmlink/internal/cli"
	"github.com/aretw0/fsmlink/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServe_AnnouncesAndStops(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Admin = "127.0.0.1:0"
	cfg.Log.Level = "error"
	cfg.Definitions.Dir = t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- cli.Serve(ctx, cli.ServeOptions{Config: cfg, Out: &out}) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Admin API on http://127.0.0.1:")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), ">>> Listening on 127.0.0.1:")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Contains(t, out.String(), ">>> Server stopped.")
}

func TestServe_RejectsBadLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "loud"
	err := cli.Serve(context.Background(), cli.ServeOptions{Config: cfg, Quiet: true, Out: &syncBuffer{}})
	assert.Error(t, err)
}
