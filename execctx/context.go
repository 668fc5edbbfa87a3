package execctx

import (
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/kbukum/capsule/config"
	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/logger"
	"github.com/kbukum/capsule/process"
)

// DefaultLibraryPathVar is the search path variable used when none is set.
const DefaultLibraryPathVar = "LD_LIBRARY_PATH"

// PathEntry is one library search path entry. Append entries go after the
// inherited value, the others before it.
type PathEntry struct {
	Path   string
	Append bool
}

// Context holds what a job needs from its environment: library search
// path entries, environment variables and per-tool configurations.
type Context struct {
	LibraryPathVar string
	LibraryPath    []PathEntry
	Env            map[string]string
	Tools          map[string]map[string]any
}

// FromConfig builds a Context from its configuration-file form.
func FromConfig(cfg config.ContextConfig) *Context {
	c := &Context{
		LibraryPathVar: cfg.LibraryPathVar,
		Env:            maps.Clone(cfg.Env),
		Tools:          maps.Clone(cfg.Tools),
	}
	for _, e := range cfg.LibraryPath {
		c.LibraryPath = append(c.LibraryPath, PathEntry{Path: e.Path, Append: e.Append})
	}
	return c
}

func (c *Context) pathVar() string {
	if c.LibraryPathVar == "" {
		return DefaultLibraryPathVar
	}
	return c.LibraryPathVar
}

// Variables returns the environment variables the context defines, tool
// variables first so that explicit Env entries win. The library path
// variable is not included, see Environ.
func (c *Context) Variables() map[string]string {
	out := make(map[string]string)
	names := slices.Sorted(maps.Keys(c.Tools))
	for _, name := range names {
		maps.Copy(out, toolVariables(name, c.Tools[name]))
	}
	maps.Copy(out, c.Env)
	return out
}

// Environ returns Variables plus the library path variable computed over
// the value lookup returns for it. Jobs receive this map instead of the
// process-wide environment being modified.
func (c *Context) Environ(lookup func(string) (string, bool)) map[string]string {
	out := c.Variables()
	if len(c.LibraryPath) == 0 {
		return out
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	inherited, _ := lookup(c.pathVar())
	out[c.pathVar()] = joinPath(c.LibraryPath, inherited)
	return out
}

func joinPath(entries []PathEntry, inherited string) string {
	var first, last []string
	for _, e := range entries {
		p := os.ExpandEnv(e.Path)
		if e.Append {
			last = append(last, p)
		} else {
			first = append(first, p)
		}
	}
	parts := first
	if inherited != "" {
		parts = append(parts, inherited)
	}
	parts = append(parts, last...)
	return strings.Join(parts, string(filepath.ListSeparator))
}

// Check verifies that every tool in req has a configuration.
func (c *Context) Check(req process.Requirements) error {
	var missing []string
	for _, tool := range req.Tools {
		if _, ok := c.Tools[tool]; !ok {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return errors.NotFound("tool configuration", strings.Join(missing, ", "))
	}
	return nil
}

// Requirements returns the requirements p declares, after checking them
// against the context.
func (c *Context) Requirements(p process.Process) (process.Requirements, error) {
	rp, ok := p.(process.RequirementsProvider)
	if !ok {
		return process.Requirements{}, nil
	}
	req := rp.Requirements()
	return req, c.Check(req)
}

// active records what entered contexts hold in the process environment.
var active = struct {
	sync.Mutex
	keys  map[string]bool
	paths map[string]bool
}{keys: make(map[string]bool), paths: make(map[string]bool)}

// Scope is an entered context. Exit restores the environment.
type Scope struct {
	saved   map[string]*string
	keys    []string
	pathVar string
	// savedPath is the search path value before Enter, nil when unset.
	savedPath *string
	added     []string
	once      sync.Once
}

// Enter applies the context to the process environment. Contexts may be
// nested as long as they set different variables and library paths;
// overlapping entries fail with CONTEXT_CONFLICT.
func (c *Context) Enter() (*Scope, error) {
	vars := c.Variables()
	keys := slices.Sorted(maps.Keys(vars))
	paths := make([]string, 0, len(c.LibraryPath))
	for _, e := range c.LibraryPath {
		paths = append(paths, os.ExpandEnv(e.Path))
	}

	active.Lock()
	defer active.Unlock()

	var conflicts []string
	for _, k := range keys {
		if active.keys[k] {
			conflicts = append(conflicts, k)
		}
	}
	for _, p := range paths {
		if active.paths[p] {
			conflicts = append(conflicts, c.pathVar()+":"+p)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, errors.ContextConflict(conflicts)
	}

	s := &Scope{saved: make(map[string]*string), keys: keys, pathVar: c.pathVar()}
	for _, k := range keys {
		if old, ok := os.LookupEnv(k); ok {
			s.saved[k] = &old
		} else {
			s.saved[k] = nil
		}
		_ = os.Setenv(k, vars[k])
		active.keys[k] = true
	}
	if len(paths) > 0 {
		inherited, ok := os.LookupEnv(s.pathVar)
		if ok {
			s.savedPath = &inherited
		}
		_ = os.Setenv(s.pathVar, joinPath(c.LibraryPath, inherited))
		s.added = paths
		for _, p := range paths {
			active.paths[p] = true
		}
	}
	logger.WithComponent("execctx").Debug("execution context entered",
		logger.Fields("variables", len(keys), "library_paths", len(paths)))
	return s, nil
}

// Exit restores the variables and the library search path to their values
// before Enter. Nested scopes exit in reverse order of entry. Calling Exit
// more than once is a no-op.
func (s *Scope) Exit() {
	s.once.Do(func() {
		active.Lock()
		defer active.Unlock()
		for _, k := range s.keys {
			if old := s.saved[k]; old != nil {
				_ = os.Setenv(k, *old)
			} else {
				_ = os.Unsetenv(k)
			}
			delete(active.keys, k)
		}
		if len(s.added) > 0 {
			if s.savedPath != nil {
				_ = os.Setenv(s.pathVar, *s.savedPath)
			} else {
				_ = os.Unsetenv(s.pathVar)
			}
			for _, p := range s.added {
				delete(active.paths, p)
			}
		}
		logger.WithComponent("execctx").Debug("execution context exited")
	})
}
