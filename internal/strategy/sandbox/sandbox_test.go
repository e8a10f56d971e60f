package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autovant/tradingcore/internal/coreerrors"
)

const cleanStrategySrc = `package myrsi

import (
	"math"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/shopspring/decimal"
)

var _ = math.Abs
var _ = decimal.Zero
var _ domain.Bar
`

const deniedStrategySrc = `package evil

import (
	"os/exec"

	"github.com/autovant/tradingcore/internal/domain"
)

var _ = exec.Command
var _ domain.Bar
`

const unsupportedStrategySrc = `package sketchy

import (
	"encoding/json"

	"github.com/autovant/tradingcore/internal/domain"
)

var _ = json.Marshal
var _ domain.Bar
`

func TestValidateImports_Clean(t *testing.T) {
	err := ValidateImports([]byte(cleanStrategySrc), DefaultAllowedImportPrefixes, DefaultDeniedImportPrefixes)
	assert.NoError(t, err)
}

func TestValidateImports_DeniedWins(t *testing.T) {
	err := ValidateImports([]byte(deniedStrategySrc), DefaultAllowedImportPrefixes, DefaultDeniedImportPrefixes)
	assert.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategyImportViolation))
}

func TestValidateImports_OutsideAllowlist(t *testing.T) {
	err := ValidateImports([]byte(unsupportedStrategySrc), DefaultAllowedImportPrefixes, DefaultDeniedImportPrefixes)
	assert.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategyImportViolation))
}

func TestValidateImports_InvalidSyntax(t *testing.T) {
	err := ValidateImports([]byte("package broken\nimport \"\"\"this is not go"), DefaultAllowedImportPrefixes, DefaultDeniedImportPrefixes)
	assert.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategySandbox))
}

func TestValidateFile_ReadError(t *testing.T) {
	readFile := func(path string) ([]byte, error) {
		return nil, assert.AnError
	}
	err := ValidateFile(readFile, "/nonexistent/strategy.go")
	assert.Error(t, err)
	assert.True(t, coreerrors.Is(err, coreerrors.KindStrategySandbox))
}
