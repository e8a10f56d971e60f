package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"

	"github.com/autovant/tradingcore/internal/coreerrors"
	"github.com/autovant/tradingcore/internal/strategy/sandbox"
)

// LoaderConfig controls where sandboxed strategies are resolved from.
type LoaderConfig struct {
	StrategiesDir  string
	StrategiesRoot string
}

func (c LoaderConfig) root() string {
	if c.StrategiesRoot != "" {
		return c.StrategiesRoot
	}
	if c.StrategiesDir != "" {
		return c.StrategiesDir
	}
	return "strategies"
}

// resolveStrategyPath maps a bare strategy name or an explicit path to
// the compiled plugin (.so) on disk.
func resolveStrategyPath(cfg LoaderConfig, strategy string) (string, error) {
	if info, err := os.Stat(strategy); err == nil && !info.IsDir() {
		abs, err := filepath.Abs(strategy)
		if err != nil {
			return "", coreerrors.StrategySandbox("cannot resolve strategy path", err)
		}
		return abs, nil
	}

	filename := strategy
	if !strings.HasSuffix(filename, ".so") {
		filename = filename + ".so"
	}
	fallback := filepath.Join(cfg.root(), filename)
	if info, err := os.Stat(fallback); err == nil && !info.IsDir() {
		abs, err := filepath.Abs(fallback)
		if err != nil {
			return "", coreerrors.StrategySandbox("cannot resolve strategy path", err)
		}
		return abs, nil
	}

	return "", coreerrors.StrategyValidation(fmt.Sprintf("strategy not found: %s", strategy), nil)
}

// sourcePathFor guesses the .go source sibling of a compiled .so plugin so
// the sandbox can statically check it before the plugin is ever opened.
// Strategy authors are expected to ship strategy.go next to strategy.so;
// LoadStrategyBundle rejects a plugin whose source file cannot be read.
func sourcePathFor(pluginPath string) string {
	return strings.TrimSuffix(pluginPath, ".so") + ".go"
}

// extractBundle pulls the exported GetBundle func out of an opened
// plugin, falling back to a Bundle variable.
func extractBundle(p *plugin.Plugin) (Bundle, error) {
	if sym, err := p.Lookup("GetBundle"); err == nil {
		fn, ok := sym.(func() Bundle)
		if !ok {
			return Bundle{}, coreerrors.StrategyValidation("strategy GetBundle has the wrong signature, want func() Bundle", nil)
		}
		return fn(), nil
	}

	sym, err := p.Lookup("Bundle")
	if err != nil {
		return Bundle{}, coreerrors.StrategyValidation("strategy must export GetBundle() Bundle or a Bundle variable", nil)
	}
	bundlePtr, ok := sym.(*Bundle)
	if !ok {
		return Bundle{}, coreerrors.StrategyValidation("strategy Bundle export is not of type Bundle", nil)
	}
	return *bundlePtr, nil
}

// validateBundle checks the bundle schema.
func validateBundle(bundle Bundle) error {
	if len(bundle.Meta.Universe) == 0 {
		return coreerrors.StrategySchema("strategy meta.universe must be non-empty", nil)
	}
	if len(bundle.Meta.RequiredFields) == 0 {
		return coreerrors.StrategySchema("strategy meta.required_fields must be non-empty", nil)
	}
	if bundle.Meta.Timeframe != "" && !bundle.Meta.Timeframe.Valid() {
		return coreerrors.StrategySchema(fmt.Sprintf("strategy meta.timeframe %q is not supported", bundle.Meta.Timeframe), nil)
	}
	if bundle.Build == nil {
		return coreerrors.StrategyValidation("strategy bundle must provide a Build constructor", nil)
	}
	return nil
}

// LoadStrategyBundle resolves, sandbox-checks, loads, and
// schema-validates a strategy plugin, returning its Bundle.
func LoadStrategyBundle(cfg LoaderConfig, strategy string) (Bundle, error) {
	strategyPath, err := resolveStrategyPath(cfg, strategy)
	if err != nil {
		return Bundle{}, err
	}

	sourcePath := sourcePathFor(strategyPath)
	if sandboxErr := sandbox.ValidateFile(os.ReadFile, sourcePath); sandboxErr != nil {
		return Bundle{}, sandboxErr
	}

	p, err := plugin.Open(strategyPath)
	if err != nil {
		return Bundle{}, coreerrors.StrategySandbox(fmt.Sprintf("failed to load strategy plugin %s", strategyPath), err)
	}

	bundle, err := extractBundle(p)
	if err != nil {
		return Bundle{}, err
	}
	if err := validateBundle(bundle); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}

// ValidateAllStrategies walks every .so in the strategies directory and
// loads/validates each, returning the names that failed.
func ValidateAllStrategies(cfg LoaderConfig) (ok []string, failed map[string]error, err error) {
	root := cfg.root()
	entries, readErr := os.ReadDir(root)
	if readErr != nil {
		return nil, nil, coreerrors.StrategyValidation(fmt.Sprintf("strategies directory not found: %s", root), readErr)
	}

	failed = make(map[string]error)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if _, loadErr := LoadStrategyBundle(cfg, filepath.Join(root, name)); loadErr != nil {
			failed[name] = loadErr
			continue
		}
		ok = append(ok, name)
	}
	return ok, failed, nil
}
