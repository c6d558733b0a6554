package registry

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/quietcore/runtime/internal/runtimeerr"
)

// Impl is what a handler package supplies at compile time in place of
// the filesystem-loaded projector/command modules §4.3 describes.
type Impl struct {
	Projector Projector
	Commands  map[string]Command
}

// handler is a discovered manifest paired with its registered Go
// implementation.
type handler struct {
	manifest Manifest
	impl     Impl
}

// Registry is the Handler Registry (§4.3). The zero value is usable.
type Registry struct {
	registered map[string]Impl
	handlers   map[string]handler
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{registered: map[string]Impl{}}
}

// Register associates name (matching a manifest's `name` field) with
// its compiled implementation. Call this before Discover, typically
// from each handler package's init.
func (r *Registry) Register(name string, impl Impl) {
	if r.registered == nil {
		r.registered = map[string]Impl{}
	}
	r.registered[name] = impl
}

// Discover enumerates immediate subdirectories of basePath (§6.2),
// reads each one's manifest.yaml, and pairs it with a registered
// implementation. A manifest with no matching Register call fails with
// HandlerNotFound — the Go analogue of a dynamic import that can't find
// its module.
func (r *Registry) Discover(basePath string) error {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		return runtimeerr.New(runtimeerr.StorageUnavailable, "registry.Discover", err)
	}

	handlers := map[string]handler{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(basePath, entry.Name())
		m, ok, err := loadManifest(dir)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		impl, ok := r.registered[m.Name]
		if !ok {
			return runtimeerr.Newf(runtimeerr.HandlerNotFound, "registry.Discover", "no implementation registered for handler %q", m.Name)
		}
		handlers[m.Name] = handler{manifest: *m, impl: impl}
	}
	r.handlers = handlers
	return nil
}

// DiscoverHandlers lists the handler names found by the last Discover
// call, sorted (§4.3 "discover_handlers() -> list of handler names";
// sorting gives the Tick Scheduler's §4.6 lexicographic ordering for
// free).
func (r *Registry) DiscoverHandlers() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig returns the manifest for name, or ok=false if no such
// handler was discovered (§4.3 "load_config(name) -> manifest | none").
func (r *Registry) LoadConfig(name string) (Manifest, bool) {
	h, ok := r.handlers[name]
	if !ok {
		return Manifest{}, false
	}
	return h.manifest, true
}

// Projector returns the registered projector for handler name, if any
// (a handler with no projector only exposes commands/jobs).
func (r *Registry) Projector(name string) (Projector, bool) {
	h, ok := r.handlers[name]
	if !ok || h.impl.Projector == nil {
		return nil, false
	}
	return h.impl.Projector, true
}

// ResolveCommand looks up a command by handler and command name (§4.3
// "resolve_command(handler, command) -> module path | none" — here, the
// registered Command itself rather than a path, since there is no
// dynamic module to resolve a path to).
func (r *Registry) ResolveCommand(handlerName, command string) (Command, bool) {
	h, ok := r.handlers[handlerName]
	if !ok {
		return Command{}, false
	}
	if _, declared := h.manifest.Commands[command]; !declared {
		return Command{}, false
	}
	cmd, ok := h.impl.Commands[command]
	return cmd, ok
}

// Job returns the command name invoked on every tick for handlerName,
// if its manifest declares one (§4.6, §4.10 "job: optional command name
// (must exist in commands)").
func (r *Registry) Job(handlerName string) (string, bool) {
	h, ok := r.handlers[handlerName]
	if !ok || h.manifest.Job == "" {
		return "", false
	}
	return h.manifest.Job, true
}
