package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/behaveflow/bus"
	"github.com/petal-labs/behaveflow/config"
	"github.com/petal-labs/behaveflow/core"
	"github.com/petal-labs/behaveflow/graph"
	"github.com/petal-labs/behaveflow/lifecycle"
	"github.com/petal-labs/behaveflow/loader"
	bfotel "github.com/petal-labs/behaveflow/otel"
	"github.com/petal-labs/behaveflow/prom"
	"github.com/petal-labs/behaveflow/registry"
	"github.com/petal-labs/behaveflow/runtime"
	"github.com/petal-labs/behaveflow/state"
)

const shutdownTimeout = 5 * time.Second

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a behavior graph",
		Long: `Execute a behavior graph: fire the start pulse, then tick pulses, then
the end pulse, draining the engine after each one.

Ticks are fired --iterations times back to back, or on the --cron schedule
for --duration.`,
		Args: cobra.ExactArgs(1),
		RunE: runRun,
	}

	cmd.Flags().Int("passes", 0, "ExecuteAllAsync passes after each pulse")
	cmd.Flags().Int("iterations", 0, "Number of tick pulses when no cron schedule is set")
	cmd.Flags().Int("step-limit", 0, "Maximum steps per drain pass (0 = unlimited)")
	cmd.Flags().String("cron", "", "Fire ticks on a cron schedule, e.g. \"@every 100ms\"")
	cmd.Flags().Duration("duration", 0, "How long to fire cron ticks")

	cmd.Flags().String("state", "", "State backend: memory | redis | sqlite")
	cmd.Flags().String("state-key", "", "Snapshot key for a durable state backend")
	cmd.Flags().String("redis-addr", "", "Redis address for the redis state backend")
	cmd.Flags().String("sqlite-dsn", "", "SQLite DSN for the sqlite state backend")
	cmd.Flags().Bool("reset-state", false, "Delete the stored snapshot before running")

	cmd.Flags().String("events-db", "", "Persist engine events to this SQLite database")
	cmd.Flags().Duration("throttle", 0, "Coalesce per-step events over this interval before persisting")
	cmd.Flags().String("otlp-endpoint", "", "Export traces to this OTLP/HTTP endpoint")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Bool("metrics-summary", false, "Print counter totals after the run")

	cmd.Flags().Bool("upgrade", false, "Rewrite the file in the current format before running")
	cmd.Flags().Bool("dry-run", false, "Build the graph and stop before executing")

	return cmd
}

// applyRunFlags overlays the flags the user set on cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("passes") {
		cfg.Engine.Passes, _ = flags.GetInt("passes")
	}
	if flags.Changed("iterations") {
		cfg.Engine.Iterations, _ = flags.GetInt("iterations")
	}
	if flags.Changed("step-limit") {
		cfg.Engine.StepLimit, _ = flags.GetInt("step-limit")
	}
	if flags.Changed("cron") {
		cfg.Engine.Cron, _ = flags.GetString("cron")
	}
	if flags.Changed("duration") {
		cfg.Engine.Duration, _ = flags.GetDuration("duration")
	}
	if flags.Changed("state") {
		cfg.State.Backend, _ = flags.GetString("state")
	}
	if flags.Changed("state-key") {
		cfg.State.Key, _ = flags.GetString("state-key")
	}
	if flags.Changed("redis-addr") {
		cfg.State.Redis.Addr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("sqlite-dsn") {
		cfg.State.SQLite.DSN, _ = flags.GetString("sqlite-dsn")
	}
	if flags.Changed("events-db") {
		cfg.Events.DB, _ = flags.GetString("events-db")
	}
	if flags.Changed("throttle") {
		cfg.Events.Throttle, _ = flags.GetDuration("throttle")
	}
	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint, _ = flags.GetString("otlp-endpoint")
	}
	if flags.Changed("metrics-addr") {
		cfg.Telemetry.MetricsAddr, _ = flags.GetString("metrics-addr")
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, logger, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return exitError(exitConfig, "invalid configuration: %v", err)
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	doc, err := loadDocument(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resetState, _ := cmd.Flags().GetBool("reset-state")
	states, err := openState(ctx, cfg, logger, resetState)
	if err != nil {
		return err
	}
	defer states.close()

	pulses := lifecycle.NewManualEmitter()
	deps := registry.Dependencies{Logger: logger, Lifecycle: pulses, State: states.service}
	g, diags := graph.Build(doc, reg, deps)
	if graph.HasErrors(diags) {
		printDiagnosticsText(cmd.ErrOrStderr(), diags)
		return exitError(exitValidation, "graph %s is invalid", path)
	}
	for _, d := range graph.Warnings(diags) {
		logger.Warn(d.Message, "code", d.Code, "path", d.Path)
	}

	if upgrade, _ := cmd.Flags().GetBool("upgrade"); upgrade {
		if err := loader.Save(path, graph.ToDocument(g, reg)); err != nil {
			return exitError(exitRuntime, "upgrade %s: %v", path, err)
		}
		logger.Info("graph upgraded", "path", path)
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Dry run: graph %s has %d nodes\n", path, g.Len())
		return nil
	}

	runID := uuid.NewString()
	obs, err := openObservers(ctx, cfg, runID, logger)
	if err != nil {
		return err
	}
	defer obs.close(logger)

	opts := runtime.DefaultEngineOptions()
	opts.RunID = runID
	opts.Logger = logger
	opts.StepLimit = cfg.Engine.StepLimit
	opts.EventHandler = obs.handler()
	opts.EventBus = obs.publisher()
	if obs.tracing != nil {
		opts.EventEmitterDecorator = bfotel.Decorator(obs.tracing)
	}

	engine, err := runtime.NewEngine(g.Nodes(), opts)
	if err != nil {
		return exitError(exitRuntime, "create engine: %v", err)
	}
	obs.collector.Observe(engine)
	if err := engine.InitEventNodes(); err != nil {
		return exitError(exitRuntime, "initialize event nodes: %v", err)
	}
	logger.Info("run started", "run_id", runID, "graph", g.Name(), "nodes", g.Len())

	d := &driver{engine: engine, pulses: pulses, passes: cfg.Engine.Passes, logger: logger}
	started := time.Now()
	runErr := d.run(ctx, cfg.Engine)
	elapsed := time.Since(started)

	steps := engine.ExecutionSteps()
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(steps) / secs
	}
	fmt.Fprintf(cmd.OutOrStdout(), "profile results: %d nodes executed in %.3f seconds, at a rate of %.0f steps/second\n",
		steps, elapsed.Seconds(), rate)

	if err := engine.Dispose(); err != nil {
		logger.Error("dispose failed", "error", err)
	}
	obs.drain(logger)

	if err := states.sync(); err != nil {
		logger.Error("state sync failed", "error", err)
		if runErr == nil {
			runErr = exitError(exitRuntime, "%v", err)
		}
	}

	if summary, _ := cmd.Flags().GetBool("metrics-summary"); summary {
		printMetricsSummary(cmd.OutOrStdout(), obs.collector)
	}

	return runErr
}

// driver fires lifecycle pulses and drains the engine after each one.
type driver struct {
	engine *runtime.Engine
	pulses *lifecycle.ManualEmitter
	passes int
	logger *slog.Logger
	failed int
}

func (d *driver) run(ctx context.Context, cfg config.EngineConfig) error {
	if err := d.pulse(ctx, lifecycle.PulseStart); err != nil {
		return err
	}

	if cfg.Cron != "" {
		if err := d.cronTicks(ctx, cfg.Cron, cfg.Duration); err != nil {
			return err
		}
	} else {
		for i := 0; i < cfg.Iterations; i++ {
			if err := d.pulse(ctx, lifecycle.PulseTick); err != nil {
				return err
			}
		}
	}

	if err := d.pulse(ctx, lifecycle.PulseEnd); err != nil {
		return err
	}
	if d.failed > 0 {
		return exitError(exitRuntime, "%d node %s failed", d.failed, pluralize("execution", d.failed))
	}
	return nil
}

// pulse fires p when something listens to it and drains the engine.
func (d *driver) pulse(ctx context.Context, p lifecycle.Pulse) error {
	if d.pulses.ListenerCount(p) == 0 {
		return nil
	}
	d.pulses.Fire(p)
	return d.drain(ctx)
}

func (d *driver) drain(ctx context.Context) error {
	_, err := d.engine.ExecuteAllAsync(ctx, d.passes)
	return d.check(ctx, err)
}

// check logs node failures and converts cancellation into an exit error.
func (d *driver) check(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return exitError(exitInterrupted, "interrupted")
	}
	if err != nil {
		d.failed++
		d.logger.Error("execution failed", "error", err)
	}
	return nil
}

// cronTicks fires ticks on schedule until duration elapses.
func (d *driver) cronTicks(ctx context.Context, schedule string, duration time.Duration) error {
	if d.pulses.ListenerCount(lifecycle.PulseTick) == 0 {
		return nil
	}
	ticker, err := lifecycle.NewCronTicker(lifecycle.CronTickerConfig{
		Schedule: schedule,
		Emitter:  d.pulses,
		Poster:   d.engine,
		Logger:   d.logger,
	})
	if err != nil {
		return exitError(exitConfig, "%v", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	ticker.Start()
	for runCtx.Err() == nil {
		if err := d.engine.WaitForWork(runCtx); err != nil {
			break
		}
		_, err := d.engine.ExecuteAllAsync(runCtx, d.passes)
		if err != nil && runCtx.Err() == nil {
			d.failed++
			d.logger.Error("execution failed", "error", err)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := ticker.Stop(stopCtx); err != nil {
		d.logger.Warn("cron ticker did not stop cleanly", "error", err)
	}
	d.logger.Debug("cron ticks done", "ticks", ticker.Ticks())

	if ctx.Err() != nil {
		return exitError(exitInterrupted, "interrupted")
	}
	// Ticks posted just before the deadline.
	return d.drain(ctx)
}

// runState is the state service of one run plus its durable backing.
type runState struct {
	service core.StateService
	durable *state.Service
	closer  io.Closer
	logger  *slog.Logger
}

func openState(ctx context.Context, cfg config.RunConfig, logger *slog.Logger, reset bool) (*runState, error) {
	rs := &runState{logger: logger}

	var store state.Store
	switch cfg.State.Backend {
	case config.BackendRedis:
		var opts []state.RedisOption
		if cfg.State.Redis.Prefix != "" {
			opts = append(opts, state.WithPrefix(cfg.State.Redis.Prefix))
		}
		if cfg.State.Redis.TTL > 0 {
			opts = append(opts, state.WithTTL(cfg.State.Redis.TTL))
		}
		redisStore := state.NewRedisStore(cfg.State.Redis.Addr, cfg.State.Redis.Password, cfg.State.Redis.DB, opts...)
		store, rs.closer = redisStore, redisStore
	case config.BackendSQLite:
		s, err := state.NewSQLiteStore(cfg.State.SQLite.DSN)
		if err != nil {
			return nil, exitError(exitRuntime, "open state store: %v", err)
		}
		store, rs.closer = s, s
	default:
		rs.service = state.NewMemService()
		return rs, nil
	}

	rs.durable = state.NewService(store, cfg.State.Key, logger)
	rs.service = rs.durable
	if reset {
		if err := rs.durable.Reset(ctx); err != nil {
			rs.close()
			return nil, exitError(exitRuntime, "%v", err)
		}
		logger.Info("state reset", "key", cfg.State.Key)
		return rs, nil
	}
	found, err := rs.durable.Rehydrate(ctx)
	if err != nil {
		rs.close()
		return nil, exitError(exitRuntime, "%v", err)
	}
	logger.Debug("state loaded", "backend", cfg.State.Backend, "key", cfg.State.Key, "found", found)
	return rs, nil
}

// sync writes durable state back. The run context may already be
// cancelled, so it uses its own deadline.
func (rs *runState) sync() error {
	if rs.durable == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return rs.durable.SyncAndClear(ctx)
}

func (rs *runState) close() {
	if rs.closer == nil {
		return
	}
	if err := rs.closer.Close(); err != nil {
		rs.logger.Warn("close state store", "error", err)
	}
	rs.closer = nil
}

// observers hold the event consumers attached to one run.
type observers struct {
	collector *prom.Collector
	metrics   *bfotel.MetricsHandler
	tracing   *bfotel.TracingHandler
	provider  interface{ Shutdown(context.Context) error }

	bus      *bus.MemBus
	throttle *bus.ThrottledEmitter
	store    *bus.SQLiteEventStore
	consumed chan int

	server *http.Server
}

func openObservers(ctx context.Context, cfg config.RunConfig, runID string, logger *slog.Logger) (*observers, error) {
	obs := &observers{collector: prom.NewCollector("behaveflow")}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := bfotel.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, exitError(exitConfig, "%v", err)
		}
		otelapi.SetTracerProvider(tp)
		obs.provider = tp
		obs.tracing = bfotel.NewTracingHandler(tp.Tracer("behaveflow"))
		metrics, err := bfotel.NewMetricsHandler(otelapi.Meter("behaveflow"))
		if err != nil {
			obs.close(logger)
			return nil, exitError(exitRuntime, "%v", err)
		}
		obs.metrics = metrics
	}

	if cfg.Events.DB != "" {
		store, err := bus.NewSQLiteEventStore(bus.SQLiteStoreConfig{
			DSN:            cfg.Events.DB,
			RetentionAge:   cfg.Events.RetentionAge,
			RetentionCount: cfg.Events.RetentionCount,
		})
		if err != nil {
			obs.close(logger)
			return nil, exitError(exitRuntime, "open event store: %v", err)
		}
		obs.store = store
		obs.bus = bus.NewMemBus(bus.MemBusConfig{})
		if cfg.Events.Throttle > 0 {
			obs.throttle = bus.NewThrottledEmitter(obs.bus.Publish, bus.ThrottleConfig{
				CoalesceInterval: cfg.Events.Throttle,
			})
		}

		sub := obs.bus.Subscribe(runID)
		subscriber := bus.NewStoreSubscriber(store, logger)
		obs.consumed = make(chan int, 1)
		go func() {
			obs.consumed <- subscriber.Consume(context.Background(), sub)
		}()
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			obs.close(logger)
			return nil, exitError(exitConfig, "metrics listener: %v", err)
		}
		obs.server = &http.Server{
			Handler:           obs.collector.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := obs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("serving metrics", "addr", ln.Addr().String())
	}

	return obs, nil
}

// handler fans engine events out to the synchronous consumers.
func (o *observers) handler() runtime.EventHandler {
	handlers := []runtime.EventHandler{o.collector.Handle}
	if o.tracing != nil {
		handlers = append(handlers, o.tracing.Handle)
	}
	if o.metrics != nil {
		handlers = append(handlers, o.metrics.Handle)
	}
	if o.throttle != nil {
		handlers = append(handlers, o.throttle.Handler())
	}
	return runtime.MultiEventHandler(handlers...)
}

// publisher returns the bus the engine publishes to directly, or nil when
// events reach it through the throttle or nothing persists them.
func (o *observers) publisher() runtime.EventPublisher {
	if o.bus == nil || o.throttle != nil {
		return nil
	}
	return o.bus
}

// drain flushes the throttle and waits for the store subscriber to persist
// every published event.
func (o *observers) drain(logger *slog.Logger) {
	if o.throttle != nil {
		o.throttle.Close()
		o.throttle = nil
	}
	if o.bus != nil {
		if err := o.bus.Close(); err != nil {
			logger.Warn("close event bus", "error", err)
		}
		o.bus = nil
	}
	if o.consumed != nil {
		n := <-o.consumed
		o.consumed = nil
		logger.Debug("events persisted", "count", n)
	}
}

func (o *observers) close(logger *slog.Logger) {
	o.drain(logger)
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			logger.Warn("close event store", "error", err)
		}
		o.store = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if o.server != nil {
		if err := o.server.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
		o.server = nil
	}
	if o.provider != nil {
		if err := o.provider.Shutdown(ctx); err != nil {
			logger.Warn("tracer provider shutdown", "error", err)
		}
		o.provider = nil
	}
}

func printMetricsSummary(w io.Writer, c *prom.Collector) {
	summary, err := c.Summary()
	if err != nil {
		fmt.Fprintf(w, "metrics unavailable: %v\n", err)
		return
	}
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "metrics:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s %g\n", name, summary[name])
	}
}
