// Package preset holds the catalog of example chains bundled with the
// application. The catalog is built once at startup by loading every
// declared document; a preset that fails to load is left out and reported,
// it never takes the others down with it.
package preset

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"chain-keeper/pkg/checksum"
	"chain-keeper/pkg/graph"
	"chain-keeper/pkg/loader"
)

//go:embed presets
var bundledFS embed.FS

const (
	bundledManifest = "presets/catalog.yaml"

	// DefaultWorkers bounds concurrent preset loads.
	DefaultWorkers = 4
)

// Meta is the authored description of a preset, independent of the
// document's own fields.
type Meta struct {
	Name        string `yaml:"name" json:"name"`
	Author      string `yaml:"author" json:"author"`
	Description string `yaml:"description" json:"description"`
	File        string `yaml:"file" json:"-"`
}

type manifest struct {
	Presets []Meta `yaml:"presets"`
}

// Entry is a successfully loaded preset.
type Entry struct {
	Meta
	Graph    *graph.Graph
	Revision int // schema revision the preset was authored at
	Checksum checksum.Status
	Warnings []loader.Warning
}

// Failure is a preset left out of the catalog.
type Failure struct {
	Name string
	File string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("preset %q (%s): %v", f.Name, f.File, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Catalog is an ordered, read-only set of presets.
type Catalog struct {
	entries  []Entry
	failures []Failure
	byName   map[string]int
}

var errDuplicateName = errors.New("duplicate preset name")

// Load reads the manifest at manifestPath in fsys and loads every preset it
// declares, at most workers at a time. Document paths are relative to the
// manifest. Entries keep manifest order regardless of completion order.
// Only an unreadable manifest is an error; per-preset problems are
// collected as Failures.
func Load(l *loader.Loader, fsys fs.FS, manifestPath string, workers int) (*Catalog, error) {
	raw, err := fs.ReadFile(fsys, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read preset manifest %s: %w", manifestPath, err)
	}
	var mf manifest
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("parse preset manifest %s: %w", manifestPath, err)
	}
	if workers < 1 {
		workers = 1
	}

	dir := path.Dir(manifestPath)
	results := make([]*loader.Result, len(mf.Presets))
	errs := make([]error, len(mf.Presets))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, m := range mf.Presets {
		g.Go(func() error {
			if m.File == "" {
				errs[i] = errors.New("no file declared")
				return nil
			}
			data, err := fs.ReadFile(fsys, path.Join(dir, m.File))
			if err != nil {
				errs[i] = fmt.Errorf("read: %w", err)
				return nil
			}
			results[i], errs[i] = l.Load(data)
			return nil
		})
	}
	_ = g.Wait()

	c := &Catalog{byName: make(map[string]int, len(mf.Presets))}
	for i, m := range mf.Presets {
		err := errs[i]
		if _, dup := c.byName[m.Name]; dup && err == nil {
			err = errDuplicateName
		}
		if err != nil {
			c.failures = append(c.failures, Failure{Name: m.Name, File: m.File, Err: err})
			continue
		}
		res := results[i]
		c.byName[m.Name] = len(c.entries)
		c.entries = append(c.entries, Entry{
			Meta:     m,
			Graph:    res.Graph,
			Revision: res.From,
			Checksum: res.Checksum,
			Warnings: res.Warnings,
		})
	}
	return c, nil
}

// LoadBundled loads the presets shipped with the binary through l. Unlike
// Bundled it builds a fresh catalog on every call.
func LoadBundled(l *loader.Loader, workers int) (*Catalog, error) {
	return Load(l, bundledFS, bundledManifest, workers)
}

var (
	bundledOnce sync.Once
	bundled     *Catalog
)

// Bundled returns the process-wide catalog of presets shipped with the
// binary, loading it on first use.
func Bundled() *Catalog {
	bundledOnce.Do(func() {
		c, err := LoadBundled(loader.New(nil, nil), DefaultWorkers)
		if err != nil {
			c = &Catalog{
				byName:   map[string]int{},
				failures: []Failure{{File: bundledManifest, Err: err}},
			}
		}
		bundled = c
	})
	return bundled
}

// Entries returns the presets in declaration order.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Len is the number of loaded presets.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Lookup finds a preset by name.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Failures returns the presets that could not be loaded.
func (c *Catalog) Failures() []Failure {
	return slices.Clone(c.failures)
}
