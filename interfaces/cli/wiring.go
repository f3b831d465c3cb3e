package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/agent-phoenix/application"
	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/config"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/executor"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/resilience"
	badgerstore "github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/badger"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/filesystem"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/memory"
	redisstore "github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/redis"
	sqlitestore "github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/sqlite"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/toolstore"
)

// wasmPageSize is the WebAssembly linear memory page size in bytes.
const wasmPageSize = 65536

// loadConfig resolves the configuration file and initializes logging from it.
func (a *App) loadConfig() (*domainconfig.Config, error) {
	cfg, err := config.NewLoader().Resolve(".", a.opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a.initLogging(cfg.Logging, false)
	return cfg, nil
}

// initLogging applies the configured logging, overridden by -v, -q and headless mode.
func (a *App) initLogging(lc domainconfig.LoggingConfig, headless bool) {
	lcfg := logging.Config{
		Level:   lc.Level,
		Format:  lc.Format,
		NoColor: lc.NoColor || a.opts.noColor,
		Output:  a.stderr,
	}
	if headless {
		lcfg.Format = "json"
	}
	switch {
	case a.opts.verbose:
		lcfg.Level = "debug"
	case a.opts.quiet:
		lcfg.Level = "warn"
	}
	a.logLevel = lcfg.Level
	logging.Init(lcfg)
}

// tracing returns the tracer provider for this invocation. At the trace log
// level ended spans are written to the log; otherwise spans go to the global
// provider. The returned func flushes the provider.
func (a *App) tracing() (trace.TracerProvider, func(context.Context) error) {
	if a.logLevel != "trace" {
		return otel.GetTracerProvider(), func(context.Context) error { return nil }
	}
	tp := telemetry.NewTracerProvider(telemetry.LogExporter{})
	return tp, tp.Shutdown
}

// metrics returns the OpenTelemetry recorder, or a no-op one when the
// instruments cannot be created.
func metrics() telemetry.Metrics {
	mp := telemetry.NewMetricsProvider(telemetry.DefaultMetricsConfig())
	if err := mp.Error(); err != nil {
		logging.Warn().
			Add(logging.Component("cli")).
			Add(logging.ErrorField(err)).
			Msg("metrics disabled")
		return telemetry.NoopMetricsProvider{}
	}
	return mp
}

// openLedgerStore opens the configured ledger backend.
func openLedgerStore(ctx context.Context, lc domainconfig.LedgerConfig) (ledger.Store, error) {
	switch lc.Backend {
	case domainconfig.BackendFilesystem, "":
		s, err := filesystem.NewLedgerStore(lc.PathOrDefault())
		if err != nil {
			return nil, err
		}
		return s, nil
	case domainconfig.BackendSQLite:
		path := lc.PathOrDefault()
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { // #nosec G301 -- state directory
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
		s, err := sqlitestore.NewLedgerStore(sqlitestore.DefaultConfig(), sqlitestore.WithPath(path))
		if err != nil {
			return nil, err
		}
		return s, nil
	case domainconfig.BackendBadger:
		s, err := badgerstore.NewLedgerStore(badgerstore.DefaultConfig(), badgerstore.WithDir(lc.PathOrDefault()))
		if err != nil {
			return nil, err
		}
		return s, nil
	case domainconfig.BackendRedis:
		rc := redisstore.DefaultConfig()
		rc.Address = lc.Redis.Address
		rc.Password = lc.Redis.Password
		rc.DB = lc.Redis.DB
		if lc.Redis.KeyPrefix != "" {
			rc.KeyPrefix = lc.Redis.KeyPrefix
		}
		s, err := redisstore.NewLedgerStore(ctx, rc)
		if err != nil {
			return nil, err
		}
		return s, nil
	case domainconfig.BackendMemory:
		return memory.NewLedgerStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", lc.Backend)
	}
}

// openLedger opens the configured ledger. The caller closes it.
func openLedger(ctx context.Context, lc domainconfig.LedgerConfig) (*ledger.Ledger, error) {
	store, err := openLedgerStore(ctx, lc)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", lc.Backend, err)
	}
	return ledger.New(store), nil
}

// newExecutor builds the per-kind executors behind the resilience layer and
// spans each call with tracer. The returned func releases the WebAssembly runtime.
func newExecutor(ctx context.Context, tc domainconfig.ToolsConfig, tracer trace.Tracer) (executor.Executor, func(context.Context) error, error) {
	wasm, err := executor.NewWasmExecutor(ctx, uint64(tc.WasmMemoryPages)*wasmPageSize)
	if err != nil {
		return nil, nil, err
	}

	var cmdOpts []executor.CommandOption
	if len(tc.EnvAllowlist) > 0 {
		cmdOpts = append(cmdOpts, executor.WithEnvAllowlist(tc.EnvAllowlist...))
	}
	dispatcher := executor.NewDispatcher().
		Register(tool.ImplementationCommand, executor.NewCommandExecutor(cmdOpts...)).
		Register(tool.ImplementationScript, executor.NewScriptExecutor(tc.ScriptPackages...)).
		Register(tool.ImplementationWasm, wasm)

	resilient := resilience.NewExecutor(dispatcher,
		resilience.WithMaxConcurrent(tc.MaxConcurrent),
		resilience.WithTimeout(tc.Timeout.Duration()),
		resilience.WithRetryAttempts(tc.RetryAttempts),
		resilience.WithCircuitBreakerThreshold(tc.CircuitBreakerThreshold),
	)
	return telemetry.TraceExecutor(resilient, tracer), wasm.Close, nil
}

// newToolServer builds the reloadable tool server over the configured store.
func newToolServer(ctx context.Context, tc domainconfig.ToolsConfig, m telemetry.Metrics, tracer trace.Tracer) (*application.ToolServer, func(context.Context) error, error) {
	exec, closeExec, err := newExecutor(ctx, tc, tracer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tool executor: %w", err)
	}
	store := toolstore.New(tc.Dir, toolstore.WithPattern(tc.Pattern))
	srv, err := application.NewToolServer(application.ToolServerConfig{
		Store:    store,
		Executor: exec,
		Metrics:  m,
	})
	if err != nil {
		_ = closeExec(ctx)
		return nil, nil, err
	}
	return srv, closeExec, nil
}
