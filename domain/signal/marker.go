package signal

import (
	"regexp"
	"slices"
	"strings"

	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// GrammarVersion identifies the completion-marker grammar.
const GrammarVersion = 1

// Marker tags recognised by grammar v1.
const (
	TagAgentCreated      = "AGENT_CREATED"
	TagToolServerCreated = "TOOL_SERVER_CREATED"
	TagMCPServerCreated  = "MCP_SERVER_CREATED"
)

// markerLine matches one whole line, e.g.
//
//	✅ **AGENT_CREATED**: csv-analyzer specialized for CSV statistics
var markerLine = regexp.MustCompile(
	`^(?:\x{2705}\x{FE0F}?[ \t]+)?(\*\*)?(` + TagAgentCreated + `|` + TagToolServerCreated + `|` + TagMCPServerCreated +
		`)(\*\*)?:[ \t]+([a-z0-9]+(?:[-_][a-z0-9]+)*)[ \t]+specialized for[ \t]+(\S.*?)[ \t]*$`)

// Marker is a parsed completion marker.
type Marker struct {
	Tag     string
	Kind    capability.Kind
	Name    string
	Purpose string
	Line    string
}

// Key returns the capability key the marker announces.
func (m Marker) Key() capability.Key {
	return capability.Key{Kind: m.Kind, Name: m.Name}
}

type block struct {
	lines  []string
	fenced bool
}

// splitBlocks groups text into paragraphs separated by blank lines. Fenced code
// blocks form their own block regardless of blank lines inside them.
func splitBlocks(text string) []block {
	var (
		blocks []block
		cur    block
		inside bool
	)
	flush := func() {
		if len(cur.lines) > 0 || cur.fenced {
			blocks = append(blocks, cur)
		}
		cur = block{}
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			if inside {
				cur.lines = append(cur.lines, line)
				flush()
				inside = false
			} else {
				flush()
				inside = true
				cur.fenced = true
				cur.lines = append(cur.lines, line)
			}
			continue
		}
		if inside {
			cur.lines = append(cur.lines, line)
			continue
		}
		if line == "" {
			flush()
			continue
		}
		cur.lines = append(cur.lines, line)
	}
	flush()
	return blocks
}

// ParseMarkers returns the marker lines that end the final paragraph of
// text, in order. A marker followed by any other line, or placed anywhere
// else including inside code fences, is illustrative and ignored.
func ParseMarkers(text string) []Marker {
	blocks := splitBlocks(text)
	if len(blocks) == 0 {
		return nil
	}
	last := blocks[len(blocks)-1]
	if last.fenced {
		return nil
	}

	var markers []Marker
	for i := len(last.lines) - 1; i >= 0; i-- {
		m, ok := parseMarkerLine(last.lines[i])
		if !ok {
			break
		}
		markers = append(markers, m)
	}
	slices.Reverse(markers)
	return markers
}

func parseMarkerLine(line string) (Marker, bool) {
	m := markerLine.FindStringSubmatch(line)
	if m == nil {
		return Marker{}, false
	}
	// Bold delimiters must be balanced.
	if m[1] != m[3] {
		return Marker{}, false
	}
	kind := capability.KindToolServer
	if m[2] == TagAgentCreated {
		kind = capability.KindAgent
	}
	return Marker{
		Tag:     m[2],
		Kind:    kind,
		Name:    m[4],
		Purpose: m[5],
		Line:    line,
	}, true
}
