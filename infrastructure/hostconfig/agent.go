// Package hostconfig reads capability artifacts and writes the host's native
// discovery configuration: agent definitions, the tool server registry and
// the hook settings.
package hostconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

var frontmatterDelim = []byte("---")

// AgentArtifact is a parsed sub-agent definition file.
type AgentArtifact struct {
	Path        string
	Name        string
	Description string
	Model       string
	Tools       []string
	Prompt      string
}

// toolList accepts either "Read, Write" or a YAML sequence.
type toolList []string

func (l *toolList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = splitList(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, splitList(item)...)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: tools must be a string or a list", value.Line)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type agentHeader struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tools       toolList `yaml:"tools"`
	Model       string   `yaml:"model"`
}

// AgentPath returns the definition path for name under dir.
func AgentPath(dir, name string) string {
	return filepath.Join(dir, name+".md")
}

// LoadAgent reads and checks <dir>/<name>.md. The header name must equal name
// and the tool list must be enumerated.
func LoadAgent(dir, name string) (AgentArtifact, error) {
	path := AgentPath(dir, name)
	data, err := os.ReadFile(path) // #nosec G304 -- path is derived from a validated slug
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return AgentArtifact{}, fmt.Errorf("%w: %s", capability.ErrArtifactMissing, path)
		}
		return AgentArtifact{}, fmt.Errorf("%w: %s: %w", capability.ErrMalformedArtifact, path, err)
	}

	a, err := ParseAgent(data)
	if err != nil {
		return AgentArtifact{}, fmt.Errorf("%w: %s: %w", capability.ErrMalformedArtifact, path, err)
	}
	if a.Name != name {
		return AgentArtifact{}, fmt.Errorf("%w: %s: header name %q does not match %q",
			capability.ErrMalformedArtifact, path, a.Name, name)
	}
	a.Path = path
	return a, nil
}

// ParseAgent parses a definition: a "---" delimited YAML header followed by
// the agent prompt.
func ParseAgent(data []byte) (AgentArtifact, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	header, body, err := splitFrontmatter(data)
	if err != nil {
		return AgentArtifact{}, err
	}

	var h agentHeader
	dec := yaml.NewDecoder(bytes.NewReader(header))
	if err := dec.Decode(&h); err != nil {
		return AgentArtifact{}, fmt.Errorf("header: %w", err)
	}
	h.Name = strings.TrimSpace(h.Name)
	if err := capability.ValidateName(h.Name); err != nil {
		return AgentArtifact{}, err
	}
	if strings.TrimSpace(h.Description) == "" {
		return AgentArtifact{}, errors.New("header: description is required")
	}
	if err := capability.ValidatePermissions(h.Tools); err != nil {
		return AgentArtifact{}, err
	}

	return AgentArtifact{
		Name:        h.Name,
		Description: strings.TrimSpace(h.Description),
		Model:       strings.TrimSpace(h.Model),
		Tools:       h.Tools,
		Prompt:      strings.TrimSpace(string(body)),
	}, nil
}

func splitFrontmatter(data []byte) (header, body []byte, err error) {
	first, rest, ok := bytes.Cut(data, []byte("\n"))
	if !ok || !bytes.Equal(bytes.TrimSpace(first), frontmatterDelim) {
		return nil, nil, errors.New("missing --- header")
	}
	for len(rest) > 0 {
		line, after, _ := bytes.Cut(rest, []byte("\n"))
		if bytes.Equal(bytes.TrimSpace(line), frontmatterDelim) {
			return header, after, nil
		}
		header = append(header, line...)
		header = append(header, '\n')
		rest = after
	}
	return nil, nil, errors.New("unterminated --- header")
}

// Descriptor converts the artifact into an agent capability descriptor.
func (a AgentArtifact) Descriptor(purpose string) capability.Descriptor {
	return capability.Descriptor{
		Name:        a.Name,
		Kind:        capability.KindAgent,
		Purpose:     purpose,
		Permissions: a.Tools,
		Source:      a.Path,
		Agent: &capability.AgentSpec{
			Description: a.Description,
			Model:       a.Model,
		},
	}
}
