// Package legacy loads first-party strategies that expose a bare
// Name()/Initialize()/Reset()/OnCandle() surface directly, bypassing the
// sandbox entirely: direct plugin.Open, no bundle schema, the strategy
// treated as a black box. Reserved for first-party code.
package legacy

import (
	"fmt"
	"path/filepath"
	"plugin"
	"sync"

	"github.com/rs/zerolog"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/strategy"
)

// Wrapper adapts a raw strategy.BarStrategy with initialize-on-first-use.
type Wrapper struct {
	mu          sync.Mutex
	inner       strategy.BarStrategy
	name        string
	initialized bool
	logger      zerolog.Logger
}

func newWrapper(inner strategy.BarStrategy, name string, logger zerolog.Logger) *Wrapper {
	return &Wrapper{inner: inner, name: name, logger: logger}
}

func (w *Wrapper) Name() string { return w.name }

func (w *Wrapper) Initialize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inner.Initialize()
	w.initialized = true
	w.logger.Info().Str("strategy", w.name).Msg("strategy initialized")
}

func (w *Wrapper) Reset() {
	w.inner.Reset()
	w.logger.Info().Str("strategy", w.name).Msg("strategy reset")
}

// Strategy returns the underlying BarStrategy, initializing it on first
// access if it has not been already.
func (w *Wrapper) Strategy() strategy.BarStrategy {
	w.mu.Lock()
	if !w.initialized {
		w.mu.Unlock()
		w.Initialize()
		return w.inner
	}
	defer w.mu.Unlock()
	return w.inner
}

// loaded caches wrappers by plugin path.
var (
	loadedMu sync.Mutex
	loaded   = map[string]*Wrapper{}
)

// Load imports a compiled strategy plugin directly by path, expecting it
// to export either a `New` constructor or a `Strategy` constructor/value
// of type strategy.BarStrategy.
func Load(pluginPath string, logger zerolog.Logger) (*Wrapper, error) {
	p, err := plugin.Open(pluginPath)
	if err != nil {
		return nil, coreerrors.StrategyValidation(fmt.Sprintf("failed to import strategy %q", pluginPath), err)
	}

	inner, err := resolveStrategyObject(p)
	if err != nil {
		return nil, err
	}

	name := inner.Name()
	if name == "" {
		name = baseNameWithoutExt(pluginPath)
	}

	wrapper := newWrapper(inner, name, logger)
	logger.Info().Str("strategy", name).Str("path", pluginPath).Msg("loaded legacy strategy")
	return wrapper, nil
}

func resolveStrategyObject(p *plugin.Plugin) (strategy.BarStrategy, error) {
	if sym, err := p.Lookup("New"); err == nil {
		if ctor, ok := sym.(func() strategy.BarStrategy); ok {
			return ctor(), nil
		}
	}
	if sym, err := p.Lookup("Strategy"); err == nil {
		if ctor, ok := sym.(func() strategy.BarStrategy); ok {
			return ctor(), nil
		}
		if s, ok := sym.(strategy.BarStrategy); ok {
			return s, nil
		}
	}
	return nil, coreerrors.StrategyValidation("strategy plugin has no 'New' or 'Strategy' constructor", nil)
}

func baseNameWithoutExt(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// Get returns a cached wrapper for pluginPath, loading it if necessary.
func Get(pluginPath string, logger zerolog.Logger) (*Wrapper, error) {
	loadedMu.Lock()
	defer loadedMu.Unlock()

	if w, ok := loaded[pluginPath]; ok {
		return w, nil
	}
	w, err := Load(pluginPath, logger)
	if err != nil {
		return nil, err
	}
	loaded[pluginPath] = w
	return w, nil
}

// ClearCache empties the load cache; used by tests.
func ClearCache() {
	loadedMu.Lock()
	defer loadedMu.Unlock()
	loaded = map[string]*Wrapper{}
}
