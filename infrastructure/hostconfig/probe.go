package hostconfig

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	phoenix "github.com/felixgeelhaar/agent-phoenix"
	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// Prober lists the tools a server advertises.
type Prober interface {
	Probe(ctx context.Context, s ServerArtifact) ([]string, error)
}

// CommandProber starts the server over stdio and asks for its tool list.
type CommandProber struct {
	Timeout time.Duration
	Dir     string
}

// Probe implements Prober. Any failure wraps capability.ErrMalformedArtifact.
func (p CommandProber) Probe(ctx context.Context, s ServerArtifact) ([]string, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.Command, s.Args...) // #nosec G204 -- interpreter comes from operator config
	cmd.Dir = p.Dir

	client := mcp.NewClient(&mcp.Implementation{Name: "phoenix-probe", Version: phoenix.Version}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: start %s: %w", capability.ErrMalformedArtifact, s.Name, err)
	}
	defer session.Close()

	var (
		names  []string
		cursor string
	)
	for {
		res, err := session.ListTools(ctx, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("%w: list tools of %s: %w", capability.ErrMalformedArtifact, s.Name, err)
		}
		for _, t := range res.Tools {
			names = append(names, t.Name)
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	sort.Strings(names)
	return names, nil
}
