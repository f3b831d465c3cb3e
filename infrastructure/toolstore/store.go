// Package toolstore reads and writes the tool registry: a directory of JSON
// tool descriptors that the reloadable tool server re-scans on every request.
package toolstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/felixgeelhaar/agent-phoenix/domain/tool"
	"github.com/felixgeelhaar/agent-phoenix/infrastructure/storage/filesystem"
)

// DefaultPattern matches descriptor files anywhere below the store root.
const DefaultPattern = "**/*.json"

// Errors
var (
	ErrShadowed   = errors.New("toolstore: shadowed by a higher version")
	ErrBadVersion = errors.New("toolstore: invalid metadata.version")
	ErrBadSchema  = errors.New("toolstore: inputSchema does not compile")
	ErrOutsideDir = errors.New("toolstore: path escapes store directory")
)

// Problem describes a descriptor file that was skipped.
type Problem struct {
	Path string
	Err  error
}

// Snapshot is the result of one scan. It is never reused across requests.
type Snapshot struct {
	Tools    []tool.Descriptor
	Problems []Problem

	schemas map[string]*jsonschema.Schema
}

// Lookup returns the descriptor named name.
func (s Snapshot) Lookup(name string) (tool.Descriptor, bool) {
	i := sort.Search(len(s.Tools), func(i int) bool { return s.Tools[i].Name >= name })
	if i < len(s.Tools) && s.Tools[i].Name == name {
		return s.Tools[i], true
	}
	return tool.Descriptor{}, false
}

// Schema returns the compiled input schema for a tool in the snapshot.
func (s Snapshot) Schema(name string) *jsonschema.Schema {
	return s.schemas[name]
}

// Store is a directory of tool descriptors.
type Store struct {
	dir     string
	pattern string
}

// Option configures a Store.
type Option func(*Store)

// WithPattern sets the doublestar pattern used to find descriptors.
func WithPattern(pattern string) Option {
	return func(s *Store) {
		s.pattern = pattern
	}
}

// New creates a store rooted at dir.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, pattern: DefaultPattern}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

type candidate struct {
	desc    tool.Descriptor
	schema  *jsonschema.Schema
	version *semver.Version
}

// Scan reads every descriptor currently in the store. Malformed files are
// reported as problems and left out of Tools. A missing directory is empty.
func (s *Store) Scan(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{schemas: make(map[string]*jsonschema.Schema)}
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}

	fsys := os.DirFS(s.dir)
	matches, err := doublestar.Glob(fsys, s.pattern)
	if err != nil {
		return Snapshot{}, fmt.Errorf("toolstore: glob %q: %w", s.pattern, err)
	}
	sort.Strings(matches)

	best := make(map[string]candidate)
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			// Removed between listing and reading.
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			snap.Problems = append(snap.Problems, Problem{Path: path, Err: err})
			continue
		}
		c, err := parse(path, data)
		if err != nil {
			snap.Problems = append(snap.Problems, Problem{Path: path, Err: err})
			continue
		}

		prev, ok := best[c.desc.Name]
		if !ok {
			best[c.desc.Name] = c
			continue
		}
		if c.version.GreaterThan(prev.version) {
			best[c.desc.Name] = c
			prev, c = c, prev
		}
		snap.Problems = append(snap.Problems, Problem{
			Path: c.desc.Source,
			Err:  fmt.Errorf("%w: %s in %s", ErrShadowed, c.desc.Name, prev.desc.Source),
		})
	}

	for name, c := range best {
		snap.Tools = append(snap.Tools, c.desc)
		snap.schemas[name] = c.schema
	}
	sort.Slice(snap.Tools, func(i, j int) bool { return snap.Tools[i].Name < snap.Tools[j].Name })
	return snap, nil
}

func parse(path string, data []byte) (candidate, error) {
	var d tool.Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return candidate{}, fmt.Errorf("%w: %w", tool.ErrInvalidDescriptor, err)
	}
	d.Source = path
	if err := d.Validate(); err != nil {
		return candidate{}, err
	}

	version := semver.MustParse("0.0.0")
	if d.Metadata.Version != "" {
		v, err := semver.NewVersion(d.Metadata.Version)
		if err != nil {
			return candidate{}, fmt.Errorf("%w: %q", ErrBadVersion, d.Metadata.Version)
		}
		version = v
	}

	schema, err := CompileSchema(path, d.InputSchema)
	if err != nil {
		return candidate{}, err
	}
	return candidate{desc: d, schema: schema, version: version}, nil
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := "mem://toolstore/" + filepath.ToSlash(name)
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSchema, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadSchema, err)
	}
	return schema, nil
}

// Resolve turns a store-relative implementation path into an absolute one.
func (s *Store) Resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrOutsideDir, rel)
	}
	return filepath.Join(s.dir, clean), nil
}

// Put validates d and writes it as <name>.json at the store root.
func (s *Store) Put(d tool.Descriptor) (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	if _, err := CompileSchema(d.Name, d.InputSchema); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil { // #nosec G301
		return "", err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, d.Name+".json")
	if err := filesystem.WriteFileAtomic(path, append(data, '\n'), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes the file that currently provides the named tool.
func (s *Store) Remove(ctx context.Context, name string) (string, error) {
	snap, err := s.Scan(ctx)
	if err != nil {
		return "", err
	}
	d, ok := snap.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", tool.ErrToolNotFound, name)
	}
	path, err := s.Resolve(d.Source)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return path, nil
}
