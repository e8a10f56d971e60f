// Package sandbox performs static allow/deny import checks on strategy
// source before the plugin compiled from it is opened, using go/parser
// in import-only mode so no strategy code runs during the check.
package sandbox

import (
	"fmt"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/autovant/tradingcore/internal/coreerrors"
)

// DefaultAllowedImportPrefixes is the conservative allowlist: the
// module's own domain/strategy packages plus the safe stdlib/ecosystem
// packages a pure strategy may need for arithmetic.
var DefaultAllowedImportPrefixes = []string{
	"github.com/autovant/tradingcore/internal/domain",
	"github.com/autovant/tradingcore/internal/strategy",
	"github.com/shopspring/decimal",
	"github.com/google/uuid",
	"math",
	"sort",
	"time",
	"fmt",
}

// DefaultDeniedImportPrefixes is the explicit deny list: anything
// touching the runner, execution, data, or network layers is forbidden
// for a sandboxed strategy regardless of the allowlist.
var DefaultDeniedImportPrefixes = []string{
	"github.com/autovant/tradingcore/internal/engine",
	"github.com/autovant/tradingcore/internal/live",
	"github.com/autovant/tradingcore/internal/data",
	"github.com/autovant/tradingcore/internal/bus",
	"github.com/autovant/tradingcore/internal/persistence",
	"github.com/autovant/tradingcore/internal/adapters",
	"github.com/autovant/tradingcore/cmd",
	"os",
	"os/exec",
	"net",
	"net/http",
	"io",
	"database/sql",
	"plugin",
	"syscall",
}

func matchesPrefix(importPath string, prefixes []string) bool {
	for _, p := range prefixes {
		if importPath == p || strings.HasPrefix(importPath, p+"/") {
			return true
		}
	}
	return false
}

// importRef is one import statement found in a strategy source file.
type importRef struct {
	line int
	path string
}

func iterImports(fset *token.FileSet, src []byte) ([]importRef, error) {
	file, err := parser.ParseFile(fset, "strategy.go", src, parser.ImportsOnly)
	if err != nil {
		return nil, err
	}
	refs := make([]importRef, 0, len(file.Imports))
	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			path = spec.Path.Value
		}
		refs = append(refs, importRef{
			line: fset.Position(spec.Pos()).Line,
			path: path,
		})
	}
	return refs, nil
}

// ValidateImports parses strategy source and validates every import
// against the allow/deny prefixes. The deny list is checked first, so a
// denied import is reported as forbidden even if an allow prefix also
// matches.
func ValidateImports(src []byte, allowed, denied []string) error {
	fset := token.NewFileSet()
	imports, err := iterImports(fset, src)
	if err != nil {
		return coreerrors.StrategySandbox(fmt.Sprintf("strategy contains invalid syntax: %s", err), err)
	}

	var forbidden, unsupported []importRef
	for _, ref := range imports {
		switch {
		case matchesPrefix(ref.path, denied):
			forbidden = append(forbidden, ref)
		case !matchesPrefix(ref.path, allowed):
			unsupported = append(unsupported, ref)
		}
	}

	if len(forbidden) == 0 && len(unsupported) == 0 {
		return nil
	}

	var details []string
	if len(forbidden) > 0 {
		details = append(details, "forbidden imports: "+describe(forbidden))
	}
	if len(unsupported) > 0 {
		details = append(details, "imports outside allowlist: "+describe(unsupported))
	}
	return coreerrors.StrategyImportViolation(
		fmt.Sprintf("strategy import policy violation: %s", strings.Join(details, "; ")),
		nil,
	)
}

func describe(refs []importRef) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, fmt.Sprintf("%s (line %d)", r.path, r.line))
	}
	return strings.Join(parts, ", ")
}

// ValidateFile reads strategyPath and runs ValidateImports against it with
// the package defaults.
func ValidateFile(readFile func(string) ([]byte, error), strategyPath string) error {
	src, err := readFile(strategyPath)
	if err != nil {
		return coreerrors.StrategySandbox(fmt.Sprintf("unable to read strategy file: %s", strategyPath), err)
	}
	return ValidateImports(src, DefaultAllowedImportPrefixes, DefaultDeniedImportPrefixes)
}
