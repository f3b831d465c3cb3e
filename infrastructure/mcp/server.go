// Package mcp serves the phoenix tool store over the Model Context Protocol.
//
// The server registers no tools up front. A middleware answers tools/list and
// tools/call from a Handler on every request, so tools added to the store while
// the server runs are visible to the next request. Everything else falls
// through to the mcp-go request handler.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	mcpgo "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/protocol"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
)

// Handler answers tool requests.
type Handler interface {
	List(ctx context.Context) ([]tool.Descriptor, error)
	Call(ctx context.Context, name string, args json.RawMessage) (tool.Result, error)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Name is the server name reported during initialization.
	Name string

	// Version is the server version reported during initialization.
	Version string

	// Instructions are optional usage hints for clients.
	Instructions string

	// Handler answers tools/list and tools/call.
	Handler Handler

	// TracerProvider spans every request. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Server is a reloadable tool server.
type Server struct {
	srv        *mcpgo.Server
	handler    Handler
	middleware []mcpgo.Middleware
}

// NewServer creates a tool server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("tool handler is required")
	}
	if config.Name == "" {
		config.Name = "phoenix-tools"
	}

	var opts []mcpgo.Option
	if config.Instructions != "" {
		opts = append(opts, mcpgo.WithInstructions(config.Instructions))
	}
	s := &Server{
		srv: mcpgo.NewServer(mcpgo.ServerInfo{
			Name:         config.Name,
			Version:      config.Version,
			Capabilities: mcpgo.Capabilities{Tools: true},
		}, opts...),
		handler: config.Handler,
	}

	otelOpts := []mcpgo.OTelOption{mcpgo.WithOTelServiceName(config.Name)}
	if config.TracerProvider != nil {
		otelOpts = append(otelOpts, mcpgo.WithTracerProvider(config.TracerProvider))
	}
	s.middleware = []mcpgo.Middleware{
		mcpgo.Recover(),
		mcpgo.RequestID(),
		mcpgo.OTel(otelOpts...),
		s.reload,
	}
	return s, nil
}

// Server returns the underlying mcp-go server.
func (s *Server) Server() *mcpgo.Server {
	return s.srv
}

// Middleware returns the request chain, outermost first. The last entry
// answers the tool methods.
func (s *Server) Middleware() []mcpgo.Middleware {
	return slices.Clone(s.middleware)
}

// ServeStdio runs the server over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcpgo.ServeStdio(ctx, s.srv, mcpgo.WithMiddleware(s.middleware...))
}

func (s *Server) reload(next mcpgo.MiddlewareHandlerFunc) mcpgo.MiddlewareHandlerFunc {
	return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		switch req.Method {
		case protocol.MethodToolsList:
			return s.listTools(ctx, req)
		case protocol.MethodToolsCall:
			return s.callTool(ctx, req)
		default:
			return next(ctx, req)
		}
	}
}

func (s *Server) listTools(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	descriptors, err := s.handler.List(ctx)
	if err != nil {
		logging.Error().
			Add(logging.Component("mcp_server")).
			Add(logging.ErrorField(err)).
			Msg("tools/list failed")
		return nil, protocol.NewInternalError(err.Error())
	}
	tools := make([]map[string]any, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, listing(d))
	}
	return protocol.NewResponse(req.ID, map[string]any{"tools": tools}), nil
}

func (s *Server) callTool(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, protocol.NewInvalidParams(err.Error())
	}
	if params.Name == "" {
		return nil, protocol.NewInvalidParams("tool name is required")
	}

	result, err := s.handler.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		logging.Error().
			Add(logging.Component("mcp_server")).
			Add(logging.ToolName(params.Name)).
			Add(logging.ErrorField(err)).
			Msg("tools/call failed")
		return nil, protocol.NewInternalError(err.Error())
	}
	return protocol.NewResponse(req.ID, callResult(result)), nil
}
