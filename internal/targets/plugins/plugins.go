package plugins

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	logs "github.com/danmuck/edgeworker/internal/logging"
	"github.com/danmuck/edgeworker/internal/worker"
)

const Name = "plugins"

var (
	ErrPluginNotInstalled = errors.New("plugins: plugin not installed")
	ErrPluginNotLoaded    = errors.New("plugins: plugin not loaded")
)

// Func is one in-process plugin entry point.
type Func func(input string) (string, error)

// Catalog maps plugin names to entry points. Inject one through
// worker.WithService(catalog) to replace DefaultCatalog.
type Catalog map[string]Func

// DefaultCatalog returns the plugins shipped with the worker.
func DefaultCatalog() Catalog {
	return Catalog{
		"upper":   upper,
		"lower":   lower,
		"reverse": reverse,
	}
}

func upper(in string) (string, error) { return strings.ToUpper(in), nil }

func lower(in string) (string, error) { return strings.ToLower(in), nil }

func reverse(in string) (string, error) {
	r := []rune(in)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r), nil
}

// Host loads plugins from its catalog and invokes loaded ones.
type Host struct {
	catalog Catalog

	mu     sync.RWMutex
	loaded map[string]Func
}

func New(services *worker.Services) (any, error) {
	catalog, err := worker.Lookup[Catalog](services)
	if err != nil {
		catalog = DefaultCatalog()
	}
	return NewHost(catalog), nil
}

func NewHost(catalog Catalog) *Host {
	if catalog == nil {
		catalog = Catalog{}
	}
	return &Host{catalog: catalog, loaded: make(map[string]Func)}
}

// LoadPlugin resolves name and marks it loaded. A name missing from the
// catalog surfaces as a *worker.LinkageError.
func (h *Host) LoadPlugin(ctx context.Context, name string) (string, error) {
	key := strings.TrimSpace(name)
	fn, err := h.resolve(key)
	if err != nil {
		return "", fmt.Errorf("plugins: load %q: %w", key, err)
	}
	h.mu.Lock()
	h.loaded[key] = fn
	h.mu.Unlock()
	token, _ := worker.CorrelationFrom(ctx)
	logs.Infof("plugins.Host.LoadPlugin name=%s correlation=%s", key, token)
	return key, nil
}

func (h *Host) resolve(name string) (Func, error) {
	fn, err := h.locate(name)
	if err != nil {
		return nil, fmt.Errorf("plugins: resolve entry point: %w", err)
	}
	return fn, nil
}

func (h *Host) locate(name string) (Func, error) {
	fn, ok := h.catalog[name]
	if !ok || fn == nil {
		return nil, &worker.LinkageError{Descriptor: name, Err: ErrPluginNotInstalled}
	}
	return fn, nil
}

// Invoke runs a previously loaded plugin.
func (h *Host) Invoke(name, input string) (string, error) {
	key := strings.TrimSpace(name)
	h.mu.RLock()
	fn, ok := h.loaded[key]
	h.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrPluginNotLoaded, key)
	}
	return fn(input)
}

// Loaded lists loaded plugin names in sorted order.
func (h *Host) Loaded() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.loaded))
	for name := range h.loaded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
