package hostconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	domainconfig "github.com/felixgeelhaar/agent-phoenix/domain/config"
	"github.com/felixgeelhaar/agent-phoenix/domain/capability"
)

// ServerArtifact is a tool server implementation file and the command that
// starts it.
type ServerArtifact struct {
	Name    string
	Path    string
	Command string
	Args    []string
}

// stemVariants returns name with dashes and underscores swapped either way.
func stemVariants(name string) []string {
	variants := []string{name}
	for _, v := range []string{
		strings.ReplaceAll(name, "-", "_"),
		strings.ReplaceAll(name, "_", "-"),
	} {
		if !slices.Contains(variants, v) {
			variants = append(variants, v)
		}
	}
	return variants
}

// FindServer locates the implementation of tool server name under cfg.ServersDir
// and resolves its interpreter from the file extension.
func FindServer(cfg domainconfig.ArtifactsConfig, name string) (ServerArtifact, error) {
	dir, err := filepath.Abs(cfg.ServersDir)
	if err != nil {
		return ServerArtifact{}, fmt.Errorf("%w: %w", capability.ErrMalformedArtifact, err)
	}

	if _, err := os.Stat(dir); err != nil {
		return ServerArtifact{}, fmt.Errorf("%w: %s: %w", capability.ErrArtifactMissing, dir, err)
	}

	var candidates []string
	for _, stem := range stemVariants(name) {
		matches, err := doublestar.Glob(os.DirFS(dir), stem+".*")
		if err != nil {
			return ServerArtifact{}, fmt.Errorf("%w: %w", capability.ErrMalformedArtifact, err)
		}
		sort.Strings(matches)
		candidates = append(candidates, matches...)
	}
	if len(candidates) == 0 {
		return ServerArtifact{}, fmt.Errorf("%w: no tool server %q in %s", capability.ErrArtifactMissing, name, dir)
	}

	var unsupported []string
	for _, rel := range candidates {
		path := filepath.Join(dir, rel)
		argv, ok := cfg.Interpreter(filepath.Ext(rel))
		if !ok || len(argv) == 0 {
			unsupported = append(unsupported, rel)
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Size() == 0 {
			return ServerArtifact{}, fmt.Errorf("%w: %s is empty", capability.ErrMalformedArtifact, path)
		}
		return ServerArtifact{
			Name:    name,
			Path:    path,
			Command: argv[0],
			Args:    append(argv[1:len(argv):len(argv)], path),
		}, nil
	}
	return ServerArtifact{}, fmt.Errorf("%w: no interpreter configured for %s",
		capability.ErrMalformedArtifact, strings.Join(unsupported, ", "))
}

// Entry returns the registry entry that starts the server.
func (s ServerArtifact) Entry() ServerEntry {
	return ServerEntry{Command: s.Command, Args: s.Args}
}

// Descriptor converts the artifact into a tool server capability descriptor.
// tools is the advertised tool list, nil when unknown.
func (s ServerArtifact) Descriptor(purpose string, tools []string) capability.Descriptor {
	perms := make([]string, 0, len(tools))
	for _, t := range tools {
		perms = append(perms, ToolPermission(s.Name, t))
	}
	if len(perms) == 0 {
		perms = nil
	}
	return capability.Descriptor{
		Name:        s.Name,
		Kind:        capability.KindToolServer,
		Purpose:     purpose,
		Permissions: perms,
		Source:      s.Path,
		ToolServer: &capability.ToolServerSpec{
			Command: s.Command,
			Args:    s.Args,
			Tools:   tools,
		},
	}
}
