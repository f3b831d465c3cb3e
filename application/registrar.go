package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
	"github.com/felixgeelhaar/agent-phoenix/domain/ledger"
	"github.com/felixgeelhaar/agent-phoenix/domain/signal"
	"github.com/felixgeelhaar/agent-phoenix/domain/supervision"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
)

// ArtifactResolver validates capability artifacts and publishes registered
// capabilities to the host.
type ArtifactResolver interface {
	Resolve(ctx context.Context, key capability.Key, purpose string) (capability.Descriptor, error)
	Publish(ctx context.Context, d capability.Descriptor) error
}

// Registrar records announced capabilities in the ledger and the host's
// discovery configuration.
type Registrar struct {
	ledger    *ledger.Ledger
	artifacts ArtifactResolver
	supersede bool
	metrics   telemetry.Metrics
}

// RegistrarConfig contains configuration for the registrar.
type RegistrarConfig struct {
	Ledger    *ledger.Ledger
	Artifacts ArtifactResolver
	// Supersede replaces an active capability of the same name instead of
	// failing with capability.ErrDuplicateName.
	Supersede bool
	Metrics   telemetry.Metrics
}

// NewRegistrar creates a registrar.
func NewRegistrar(config RegistrarConfig) (*Registrar, error) {
	if config.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if config.Artifacts == nil {
		return nil, errors.New("artifact resolver is required")
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.NoopMetricsProvider{}
	}
	return &Registrar{
		ledger:    config.Ledger,
		artifacts: config.Artifacts,
		supersede: config.Supersede,
		metrics:   config.Metrics,
	}, nil
}

// Register validates the artifact named by m and appends it to the ledger.
// The host discovery config is written inside the ledger transaction, so a
// failed publish leaves no ledger entry behind. The generation must advance
// by exactly one within that transaction; other registrations committed
// concurrently through the same store do not count against it.
func (r *Registrar) Register(ctx context.Context, m signal.Marker) (capability.Descriptor, error) {
	before, err := r.ledger.CurrentGeneration(ctx)
	if err != nil {
		return capability.Descriptor{}, err
	}

	d, err := r.artifacts.Resolve(ctx, m.Key(), m.Purpose)
	if err != nil {
		return capability.Descriptor{}, err
	}

	opts := []ledger.RegisterOption{
		ledger.WithCommitHook(func(ctx context.Context, entry capability.Descriptor, previous uint64) error {
			if entry.Generation != previous+1 {
				return fmt.Errorf("%w: %d -> %d", supervision.ErrGenerationNotAdvanced, previous, entry.Generation)
			}
			if err := r.artifacts.Publish(ctx, entry); err != nil {
				return fmt.Errorf("publish %s: %w", entry.Key(), err)
			}
			return nil
		}),
	}
	if r.supersede {
		opts = append(opts, ledger.WithSupersede())
	}
	registered, err := r.ledger.Register(ctx, d, opts...)
	if err != nil {
		return capability.Descriptor{}, err
	}

	after, err := r.ledger.CurrentGeneration(ctx)
	if err != nil {
		return capability.Descriptor{}, err
	}
	if registered.Generation <= before || after < registered.Generation {
		return capability.Descriptor{}, fmt.Errorf("%w: %d -> %d (committed %d)",
			supervision.ErrGenerationNotAdvanced, before, after, registered.Generation)
	}

	r.metrics.RecordRegistration(ctx, string(registered.Kind), registered.Generation)
	logging.Info().
		Add(logging.Component("registrar")).
		Add(logging.Capability(string(registered.Kind), registered.Name)).
		Add(logging.Generation(registered.Generation)).
		Add(logging.Path(registered.Source)).
		Msg("capability registered")
	return registered, nil
}
