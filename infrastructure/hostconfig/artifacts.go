package hostconfig

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
)

// Artifacts turns capability artifacts into descriptors and publishes them to
// the host's discovery configuration.
type Artifacts struct {
	cfg      domainconfig.ArtifactsConfig
	registry *Registry
	prober   Prober
}

// ArtifactsOption configures Artifacts.
type ArtifactsOption func(*Artifacts)

// WithProber overrides the tool server prober.
func WithProber(p Prober) ArtifactsOption {
	return func(a *Artifacts) {
		a.prober = p
	}
}

// NewArtifacts creates an artifact resolver for cfg.
func NewArtifacts(cfg domainconfig.ArtifactsConfig, opts ...ArtifactsOption) *Artifacts {
	a := &Artifacts{
		cfg:      cfg,
		registry: NewRegistry(cfg.MCPConfig),
	}
	if cfg.ProbeToolServers {
		a.prober = CommandProber{Timeout: cfg.ProbeTimeout.Duration()}
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the tool server registry.
func (a *Artifacts) Registry() *Registry {
	return a.registry
}

// Resolve validates the artifact for key and builds its descriptor.
// Errors wrap capability.ErrArtifactMissing or capability.ErrMalformedArtifact.
func (a *Artifacts) Resolve(ctx context.Context, key capability.Key, purpose string) (capability.Descriptor, error) {
	if err := capability.ValidateName(key.Name); err != nil {
		return capability.Descriptor{}, fmt.Errorf("%w: %w", capability.ErrMalformedArtifact, err)
	}

	switch key.Kind {
	case capability.KindAgent:
		art, err := LoadAgent(a.cfg.AgentsDir, key.Name)
		if err != nil {
			return capability.Descriptor{}, err
		}
		return art.Descriptor(purpose), nil

	case capability.KindToolServer:
		art, err := FindServer(a.cfg, key.Name)
		if err != nil {
			return capability.Descriptor{}, err
		}
		var tools []string
		if a.prober != nil {
			if tools, err = a.prober.Probe(ctx, art); err != nil {
				return capability.Descriptor{}, err
			}
		}
		return art.Descriptor(purpose, tools), nil

	default:
		return capability.Descriptor{}, fmt.Errorf("%w: %q", capability.ErrInvalidKind, key.Kind)
	}
}

// Publish writes d into the host's discovery configuration. Agents are read by
// the host from their definition file, so only tool servers are written.
func (a *Artifacts) Publish(ctx context.Context, d capability.Descriptor) error {
	if d.Kind != capability.KindToolServer || d.ToolServer == nil {
		return nil
	}
	return a.registry.Upsert(ctx, d.Name, ServerEntry{
		Command: d.ToolServer.Command,
		Args:    d.ToolServer.Args,
		Env:     d.ToolServer.Env,
	})
}
