package legacy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/autovant/tradingcore/internal/domain"
	"github.com/autovant/tradingcore/internal/strategy"
)

type stubStrategy struct {
	name        string
	initialized bool
	resetCount  int
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Initialize()  { s.initialized = true }
func (s *stubStrategy) Reset()       { s.resetCount++ }
func (s *stubStrategy) OnCandle(bar domain.Bar, ctx domain.StrategyContext) (strategy.Result, error) {
	return strategy.Result{}, nil
}

func TestWrapper_InitializesLazily(t *testing.T) {
	stub := &stubStrategy{name: "stub"}
	w := newWrapper(stub, "stub", zerolog.Nop())

	assert.False(t, stub.initialized)
	got := w.Strategy()
	assert.True(t, stub.initialized)
	assert.Same(t, stub, got)
}

func TestWrapper_ResetDelegates(t *testing.T) {
	stub := &stubStrategy{name: "stub"}
	w := newWrapper(stub, "stub", zerolog.Nop())
	w.Reset()
	assert.Equal(t, 1, stub.resetCount)
}

func TestBaseNameWithoutExt(t *testing.T) {
	assert.Equal(t, "turtle_breakout", baseNameWithoutExt("/strategies/turtle_breakout.so"))
}
