package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/executor"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/toolstore"
)

// ToolServer answers list and call requests against the tool store. Every
// request re-scans the store; nothing is cached between requests.
type ToolServer struct {
	store    *toolstore.Store
	executor executor.Executor
	metrics  telemetry.Metrics
}

// ToolServerConfig contains configuration for the tool server.
type ToolServerConfig struct {
	Store    *toolstore.Store
	Executor executor.Executor
	Metrics  telemetry.Metrics
}

// NewToolServer creates a tool server.
func NewToolServer(config ToolServerConfig) (*ToolServer, error) {
	if config.Store == nil {
		return nil, errors.New("tool store is required")
	}
	if config.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.NoopMetricsProvider{}
	}
	return &ToolServer{
		store:    config.Store,
		executor: config.Executor,
		metrics:  config.Metrics,
	}, nil
}

// Store returns the backing tool store.
func (s *ToolServer) Store() *toolstore.Store {
	return s.store
}

func (s *ToolServer) scan(ctx context.Context) (toolstore.Snapshot, error) {
	snap, err := s.store.Scan(ctx)
	if err != nil {
		return toolstore.Snapshot{}, err
	}
	for _, p := range snap.Problems {
		logging.Warn().
			Add(logging.Component("tool_server")).
			Add(logging.Path(p.Path)).
			Add(logging.ErrorField(p.Err)).
			Msg("skipping tool descriptor")
	}
	return snap, nil
}

// List returns the tools currently in the store, sorted by name.
func (s *ToolServer) List(ctx context.Context) ([]tool.Descriptor, error) {
	snap, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tools, nil
}

// Call runs the named tool. Lookup, validation and execution failures come
// back as error results; the returned error is reserved for store failures.
func (s *ToolServer) Call(ctx context.Context, name string, args json.RawMessage) (result tool.Result, err error) {
	start := time.Now()
	outcome := telemetry.ToolOK
	defer func() {
		if r := recover(); r != nil {
			result = tool.ErrorResult(fmt.Errorf("%w: %s: panic: %v", tool.ErrToolExecution, name, r))
			err = nil
			outcome = telemetry.ToolFailed
		}
		if err == nil {
			s.metrics.RecordToolCall(ctx, name, outcome, time.Since(start))
			logging.Debug().
				Add(logging.Component("tool_server")).
				Add(logging.ToolName(name)).
				Add(logging.Str("outcome", outcome)).
				Add(logging.Duration(time.Since(start))).
				Msg("tool call")
		}
	}()

	snap, err := s.scan(ctx)
	if err != nil {
		return tool.Result{}, err
	}
	d, ok := snap.Lookup(name)
	if !ok {
		outcome = telemetry.ToolNotFound
		return tool.ErrorResult(fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)), nil
	}

	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		outcome = telemetry.ToolInvalid
		return tool.ErrorResult(fmt.Errorf("%w: %s: %w", tool.ErrInvalidArguments, name, err)), nil
	}
	if schema := snap.Schema(name); schema != nil {
		if err := schema.Validate(instance); err != nil {
			outcome = telemetry.ToolInvalid
			return tool.ErrorResult(fmt.Errorf("%w: %s: %w", tool.ErrInvalidArguments, name, err)), nil
		}
	}

	res, execErr := s.executor.Execute(ctx, executor.Request{
		Descriptor: d,
		Arguments:  args,
		Dir:        s.store.Dir(),
		Resolve:    s.store.Resolve,
	})
	switch {
	case execErr != nil:
		outcome = telemetry.ToolFailed
		if errors.Is(execErr, context.DeadlineExceeded) || errors.Is(execErr, tool.ErrExecutionTimeout) {
			outcome = telemetry.ToolTimeout
		}
		if !errors.Is(execErr, tool.ErrToolExecution) {
			execErr = fmt.Errorf("%w: %s: %w", tool.ErrToolExecution, name, execErr)
		}
		logging.Warn().
			Add(logging.Component("tool_server")).
			Add(logging.ToolName(name)).
			Add(logging.ErrorField(execErr)).
			Msg("tool execution failed")
		return tool.ErrorResult(execErr), nil
	case res.IsError:
		outcome = telemetry.ToolFailed
	}
	return res, nil
}
