package fsmlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aretw0/fsmlink/internal/config"
	"github.com/aretw0/fsmlink/internal/controller"
	"github.com/aretw0/fsmlink/internal/logging"
	"github.com/aretw0/fsmlink/internal/runtime"
	"github.com/aretw0/fsmlink/pkg/adapters/file"
	adminhttp "github.com/aretw0/fsmlink/pkg/adapters/http"
	loamAdapter "github.com/aretw0/fsmlink/pkg/adapters/loam"
	"github.com/aretw0/fsmlink/pkg/adapters/lua"
	redisAdapter "github.com/aretw0/fsmlink/pkg/adapters/redis"
	"github.com/aretw0/fsmlink/pkg/domain"
	"github.com/aretw0/fsmlink/pkg/observability"
	"github.com/aretw0/fsmlink/pkg/ports"
	"github.com/aretw0/fsmlink/pkg/protocol"
	"github.com/aretw0/fsmlink/pkg/transport"
	"github.com/aretw0/loam"
	backend "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Runtime is a running fsmlink process: one listener, one controller owning
// at most one engine, and the optional admin API and Redis trace mirror.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	loader     ports.DefinitionLoader
	eval       ports.Evaluator
	redis      *backend.Client
	ownsRedis  bool
	controller *controller.Controller
	listener   *transport.Listener
	metrics    *observability.Metrics
	streams    *adminhttp.StreamManager
	mirror     *redisAdapter.TraceMirror

	admin   *http.Server
	adminLn net.Listener
}

// Option configures the Runtime.
type Option func(*Runtime)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithLoader bypasses the definition source named in the configuration.
func WithLoader(l ports.DefinitionLoader) Option {
	return func(r *Runtime) {
		r.loader = l
	}
}

// WithEvaluator replaces the Lua evaluator.
func WithEvaluator(eval ports.Evaluator) Option {
	return func(r *Runtime) {
		r.eval = eval
	}
}

// WithRedisClient makes the runtime use client instead of dialing
// cfg.Redis.Addr. The caller keeps ownership of the client.
func WithRedisClient(client *backend.Client) Option {
	return func(r *Runtime) {
		r.redis = client
	}
}

// New wires a Runtime from cfg. Nothing is bound until Listen or Run.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runtime{cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewNop()
	}
	if r.eval == nil {
		r.eval = lua.New()
	}

	needRedis := cfg.Redis.Mirror || (r.loader == nil && cfg.Definitions.Source == "redis")
	if needRedis && r.redis == nil {
		r.redis = backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		r.ownsRedis = true
	}

	if r.loader == nil {
		loader, err := r.newLoader()
		if err != nil {
			r.closeRedis()
			return nil, err
		}
		r.loader = loader
	}

	r.metrics = observability.NewMetrics()
	r.streams = adminhttp.NewStreamManager(r.logger)

	r.listener = transport.NewListener(r.handle,
		transport.WithLogger(r.logger),
		transport.WithMetrics(r.metrics),
		transport.WithOutboxSize(cfg.Transport.OutboxSize),
		transport.WithMaxConnections(cfg.Transport.MaxConnections),
	)

	sinks := ports.MultiSink{transport.TraceSink(r.listener), r.streams}
	if cfg.Redis.Mirror {
		r.mirror = redisAdapter.NewTraceMirror(r.redis,
			redisAdapter.WithChannel(cfg.Redis.TraceChannel),
			redisAdapter.WithMirrorLogger(r.logger),
		)
		sinks = append(sinks, r.mirror)
	}

	r.controller = controller.New(r.loader, r.eval, sinks,
		controller.WithLogger(r.logger),
		controller.WithEngineOptions(
			runtime.WithQueueSize(cfg.Engine.QueueSize),
			runtime.WithMaxEpsilonChain(cfg.Engine.MaxEpsilonChain),
			runtime.WithScriptTimeout(cfg.Engine.ScriptTimeout),
			runtime.WithLifecycleHooks(observability.CombineHooks(
				r.metrics.Hooks(),
				observability.LoggingHooks(r.logger),
			)),
		),
	)
	return r, nil
}

func (r *Runtime) newLoader() (ports.DefinitionLoader, error) {
	switch r.cfg.Definitions.Source {
	case "redis":
		return redisAdapter.NewFromClient(r.redis, redisAdapter.WithPrefix(r.cfg.Redis.Prefix)), nil
	case "loam":
		absPath, err := filepath.Abs(r.cfg.Definitions.Dir)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		repo, err := loam.Init(absPath,
			loam.WithStrict(true),
			loam.WithReadOnly(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize loam: %w", err)
		}
		return loamAdapter.New(loam.NewTypedRepository[loamAdapter.MachineMetadata](repo)), nil
	default:
		return file.New(r.cfg.Definitions.Dir), nil
	}
}

func (r *Runtime) handle(ctx context.Context, id transport.ConnID, msg protocol.Message) protocol.Message {
	return r.controller.Handle(ctx, id, msg)
}

// Listen binds the protocol listener and, when configured, the admin API.
func (r *Runtime) Listen() error {
	if err := r.listener.Listen(r.cfg.Listen); err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.Listen, err)
	}
	if r.cfg.Admin == "" {
		return nil
	}
	ln, err := net.Listen("tcp", r.cfg.Admin)
	if err != nil {
		r.listener.Stop()
		return fmt.Errorf("admin listen %s: %w", r.cfg.Admin, err)
	}
	r.adminLn = ln
	r.admin = &http.Server{
		Handler: adminhttp.NewHandler(r,
			adminhttp.WithLogger(r.logger),
			adminhttp.WithMetricsHandler(r.metrics.Handler()),
			adminhttp.WithStreams(r.streams),
			adminhttp.WithVersion(Version),
		),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.logger.Info("admin API listening", "addr", ln.Addr().String())
	return nil
}

// Run serves until ctx is cancelled or a server fails, then stops the
// engine and releases every resource. It calls Listen if needed.
func (r *Runtime) Run(ctx context.Context) error {
	if r.listener.Addr() == nil {
		if err := r.Listen(); err != nil {
			return err
		}
	}
	defer r.closeRedis()
	defer r.controller.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.listener.Serve(ctx)
	})
	if r.mirror != nil {
		g.Go(func() error {
			r.mirror.Run(ctx)
			return nil
		})
	}
	if r.admin != nil {
		g.Go(func() error {
			if err := r.admin.Serve(r.adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.admin.Shutdown(shutdownCtx); err != nil {
				r.logger.Warn("graceful admin shutdown did not complete", "error", err)
				return r.admin.Close()
			}
			return nil
		})
	}

	err := g.Wait()
	r.listener.Stop()
	return err
}

func (r *Runtime) closeRedis() {
	if r.ownsRedis && r.redis != nil {
		if err := r.redis.Close(); err != nil {
			r.logger.Warn("redis close failed", "error", err)
		}
		r.redis = nil
	}
}

// Addr returns the bound protocol address, or nil before Listen.
func (r *Runtime) Addr() net.Addr {
	return r.listener.Addr()
}

// AdminAddr returns the bound admin address, or nil when disabled.
func (r *Runtime) AdminAddr() net.Addr {
	if r.adminLn == nil {
		return nil
	}
	return r.adminLn.Addr()
}

// Snapshot returns the active machine snapshot.
func (r *Runtime) Snapshot() (domain.Snapshot, bool) {
	eng := r.controller.Engine()
	if eng == nil {
		return domain.Snapshot{}, false
	}
	return eng.Snapshot(), true
}

// Connections lists the connected peers.
func (r *Runtime) Connections() []transport.ConnID {
	return r.listener.Registry().IDs()
}

// Definitions lists the machines the definition source can load.
func (r *Runtime) Definitions(ctx context.Context) ([]string, error) {
	return r.loader.List(ctx)
}

// Dispatch handles msg as if a peer had sent it and broadcasts the response.
func (r *Runtime) Dispatch(ctx context.Context, msg protocol.Message) protocol.Message {
	resp := r.controller.Handle(ctx, 0, msg)
	r.listener.Publish(resp)
	return resp
}

// Metrics exposes the runtime's prometheus collectors.
func (r *Runtime) Metrics() *observability.Metrics {
	return r.metrics
}
