// Package fixture stages local copies of the notifier into fixture apps.
//
// Each fixture under the fixtures root gets a staged directory holding the
// library sources, so the fixture's build can package the notifier without
// a published release. Staging returns a Set of handles; releasing the Set
// removes every staged directory again.
package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/otiai10/copy"
)

// Defaults for the Python notifier checkout.
const (
	DefaultRoot = "features/fixtures"
	DefaultName = "temp-bugsnag-python"
)

// DefaultSources are the library artifacts copied into every fixture.
var DefaultSources = []string{"bugsnag", "setup.py"}

// Provisioner stages Sources into every fixture directory under Root.
type Provisioner struct {
	Root    string
	Sources []string
	// Name is the staged directory created inside each fixture.
	Name   string
	Logger *slog.Logger
}

// New returns a provisioner with the default layout.
func New(logger *slog.Logger) *Provisioner {
	return &Provisioner{
		Root:    DefaultRoot,
		Sources: DefaultSources,
		Name:    DefaultName,
		Logger:  logger,
	}
}

// Staged is the staged copy inside one fixture.
type Staged struct {
	Fixture string
	Path    string
}

// Release removes the staged directory. A directory that is already gone
// is not an error.
func (s *Staged) Release() error {
	if err := os.RemoveAll(s.Path); err != nil {
		return fmt.Errorf("remove %s: %w", s.Path, err)
	}
	return nil
}

// Set holds the staged copies of one run.
type Set struct {
	mu       sync.Mutex
	staged   []*Staged
	released bool
}

func (s *Set) add(st *Staged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = append(s.staged, st)
}

// Staged returns the handles in fixture order.
func (s *Set) Staged() []*Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Staged(nil), s.staged...)
}

// Release removes every staged copy. Only the first call does any work;
// failures from individual fixtures are collected.
func (s *Set) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true

	var result *multierror.Error
	for _, st := range s.staged {
		if err := st.Release(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Stage copies the sources into every fixture. Entries of Root that are
// not directories are skipped. On error, anything staged so far is
// released before returning.
func (p *Provisioner) Stage(ctx context.Context) (_ *Set, err error) {
	fixtures, err := p.fixtures()
	if err != nil {
		return nil, err
	}

	set := &Set{}
	defer func() {
		if err == nil {
			return
		}
		if rerr := set.Release(); rerr != nil {
			err = multierror.Append(err, rerr)
		}
	}()

	for _, dir := range fixtures {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		st := &Staged{Fixture: filepath.Base(dir), Path: filepath.Join(dir, p.Name)}
		// The staged copy holds exactly the sources.
		if err := os.RemoveAll(st.Path); err != nil {
			return nil, fmt.Errorf("clear %s: %w", st.Path, err)
		}
		if err := os.MkdirAll(st.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", st.Path, err)
		}
		set.add(st)

		for _, src := range p.Sources {
			dest := filepath.Join(st.Path, filepath.Base(src))
			if err := copy.Copy(src, dest, copy.Options{OnSymlink: deepSymlinks}); err != nil {
				return nil, fmt.Errorf("stage %s into %s: %w", src, st.Fixture, err)
			}
		}
		p.logger().Debug("staged fixture", "fixture", st.Fixture, "path", st.Path)
	}

	return set, nil
}

// Existing returns handles for staged copies already present under Root,
// without copying anything. It lets a separate process clean up.
func (p *Provisioner) Existing() (*Set, error) {
	fixtures, err := p.fixtures()
	if err != nil {
		return nil, err
	}

	set := &Set{}
	for _, dir := range fixtures {
		path := filepath.Join(dir, p.Name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		set.add(&Staged{Fixture: filepath.Base(dir), Path: path})
	}
	return set, nil
}

// fixtures lists the directories directly under Root. Symlinked
// directories count as fixtures.
func (p *Provisioner) fixtures() ([]string, error) {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		return nil, fmt.Errorf("read fixtures root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		dir := filepath.Join(p.Root, e.Name())
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func (p *Provisioner) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// deepSymlinks copies link targets so the staged tree survives being
// mounted into a build container.
func deepSymlinks(string) copy.SymlinkAction {
	return copy.Deep
}
