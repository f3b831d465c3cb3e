package signal

import "time"

// DefaultCreatorKinds are the subagent kinds that author capabilities.
var DefaultCreatorKinds = []string{"meta-agent"}

// Classifier derives capability_created from a payload.
type Classifier struct {
	creators map[string]struct{}
}

// NewClassifier creates a classifier that only considers the given subagent
// kinds. With no kinds, DefaultCreatorKinds is used.
func NewClassifier(creatorKinds ...string) *Classifier {
	if len(creatorKinds) == 0 {
		creatorKinds = DefaultCreatorKinds
	}
	c := &Classifier{creators: make(map[string]struct{}, len(creatorKinds))}
	for _, k := range creatorKinds {
		c.creators[k] = struct{}{}
	}
	return c
}

// IsCreator reports whether kind is a capability-creating subagent kind.
func (c *Classifier) IsCreator(kind string) bool {
	_, ok := c.creators[kind]
	return ok
}

// Classify turns a decoded payload into a Signal.
func (c *Classifier) Classify(id string, p Payload, receivedAt time.Time) Signal {
	s := Signal{
		ID:           id,
		SubagentKind: p.Kind(),
		ResultText:   p.Text(),
		SessionID:    p.SessionID,
		ReceivedAt:   receivedAt,
	}
	if !c.IsCreator(s.SubagentKind) {
		return s
	}

	markers := ParseMarkers(s.ResultText)
	s.Matches = len(markers)
	if len(markers) == 0 {
		return s
	}
	first := markers[0]
	s.CapabilityCreated = true
	s.Marker = &first
	s.Ambiguous = len(markers) > 1
	return s
}
