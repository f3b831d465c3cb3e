package application

import (
	"context"
	"errors"
	"time"

	"github.com/felixgeelhaar/agent-phoenix/domain/signal"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/logging"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/spool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/telemetry"
)

// SignalSource delivers classified lifecycle signals until ctx is done.
type SignalSource interface {
	Run(ctx context.Context, out chan<- signal.Signal) error
	// Flush sends every signal published before the call, to whichever of
	// Run's channel or out is delivering it, and returns once all are sent.
	Flush(ctx context.Context, out chan<- signal.Signal) error
}

// Listener turns spool deliveries into classified signals. Every decoded
// signal is forwarded, including ones that created nothing, so the
// supervisor can pick up the host session id.
type Listener struct {
	spool      *spool.Spool
	classifier *signal.Classifier
	metrics    telemetry.Metrics
	now        func() time.Time
}

// ListenerConfig contains configuration for the listener.
type ListenerConfig struct {
	Spool        *spool.Spool
	CreatorKinds []string
	Metrics      telemetry.Metrics
}

// NewListener creates a listener.
func NewListener(config ListenerConfig) (*Listener, error) {
	if config.Spool == nil {
		return nil, errors.New("spool is required")
	}
	if len(config.CreatorKinds) == 0 {
		return nil, errors.New("at least one creator kind is required")
	}
	if config.Metrics == nil {
		config.Metrics = telemetry.NoopMetricsProvider{}
	}
	return &Listener{
		spool:      config.Spool,
		classifier: signal.NewClassifier(config.CreatorKinds...),
		metrics:    config.Metrics,
		now:        time.Now,
	}, nil
}

// Run watches the spool and sends signals to out. It returns nil when ctx is
// cancelled.
func (l *Listener) Run(ctx context.Context, out chan<- signal.Signal) error {
	return l.spool.Watch(ctx, func(d spool.Delivery) {
		l.forward(ctx, d, out)
	})
}

// Flush claims the entries still in the spool and sends their signals to
// out. It waits for a signal Run is forwarding at the time of the call.
func (l *Listener) Flush(ctx context.Context, out chan<- signal.Signal) error {
	if err := l.spool.Flush(func(d spool.Delivery) {
		l.forward(ctx, d, out)
	}); err != nil {
		return err
	}
	return ctx.Err()
}

func (l *Listener) forward(ctx context.Context, d spool.Delivery, out chan<- signal.Signal) {
	sig, err := l.Classify(ctx, d)
	if err != nil {
		return
	}
	select {
	case out <- sig:
	case <-ctx.Done():
	}
}

// Classify decodes and classifies one delivery. Undecodable payloads are
// logged and reported with an error wrapping signal.ErrSignalParse.
func (l *Listener) Classify(ctx context.Context, d spool.Delivery) (signal.Signal, error) {
	p, err := signal.ParsePayload(d.Data)
	if err != nil {
		l.metrics.RecordSignal(ctx, telemetry.SignalMalformed)
		logging.Warn().
			Add(logging.Component("listener")).
			Add(logging.SignalID(d.ID)).
			Add(logging.ErrorField(err)).
			Msg("discarding malformed signal")
		return signal.Signal{}, err
	}

	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = l.now()
	}
	sig := l.classifier.Classify(d.ID, p, receivedAt)

	outcome := telemetry.SignalNoMarker
	switch {
	case !l.classifier.IsCreator(sig.SubagentKind):
		outcome = telemetry.SignalIgnored
	case sig.Ambiguous:
		outcome = telemetry.SignalAmbiguous
		logging.Warn().
			Add(logging.Component("listener")).
			Add(logging.SignalID(sig.ID)).
			Add(logging.Int("markers", sig.Matches)).
			Add(logging.Capability(string(sig.Marker.Kind), sig.Marker.Name)).
			Msg("several capability markers found, using the first")
	case sig.CapabilityCreated:
		outcome = telemetry.SignalCreated
	}
	l.metrics.RecordSignal(ctx, outcome)

	ev := logging.Debug().
		Add(logging.Component("listener")).
		Add(logging.SignalID(sig.ID)).
		Add(logging.Str("subagent_kind", sig.SubagentKind)).
		Add(logging.Bool("capability_created", sig.CapabilityCreated))
	if sig.Marker != nil {
		ev = ev.Add(logging.Capability(string(sig.Marker.Kind), sig.Marker.Name))
	}
	ev.Msg("signal received")
	return sig, nil
}
