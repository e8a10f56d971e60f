// Package coreerrors defines the trading core's error taxonomy. Each kind
// is a distinct sentinel so callers can match against it; wrapping with
// fmt.Errorf("...: %w") preserves the chain.
package coreerrors

import "fmt"

// Kind identifies a taxonomy member for logging/metrics without reflection.
type Kind string

const (
	KindConfig                  Kind = "config_error"
	KindStrategySandbox         Kind = "strategy_sandbox_error"
	KindStrategyImportViolation Kind = "strategy_import_violation"
	KindStrategyValidation      Kind = "strategy_validation_error"
	KindStrategySchema          Kind = "strategy_schema_error"
	KindDataFeed                Kind = "data_feed_error"
	KindOrder                   Kind = "order_error"
	KindRiskBreach              Kind = "risk_breach"
	KindMonotonicTimestamp      Kind = "monotonic_timestamp_error"
)

// TypedError is the common shape of every error in this taxonomy.
type TypedError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *TypedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *TypedError) Unwrap() error { return e.Err }

func new_(kind Kind, msg string, err error) *TypedError {
	return &TypedError{Kind: kind, Msg: msg, Err: err}
}

func Config(msg string, err error) error          { return new_(KindConfig, msg, err) }
func StrategySandbox(msg string, err error) error { return new_(KindStrategySandbox, msg, err) }
func StrategyImportViolation(msg string, err error) error {
	return new_(KindStrategyImportViolation, msg, err)
}
func StrategyValidation(msg string, err error) error { return new_(KindStrategyValidation, msg, err) }
func StrategySchema(msg string, err error) error     { return new_(KindStrategySchema, msg, err) }
func DataFeed(msg string, err error) error           { return new_(KindDataFeed, msg, err) }
func Order(msg string, err error) error              { return new_(KindOrder, msg, err) }
func RiskBreach(msg string, err error) error         { return new_(KindRiskBreach, msg, err) }
func MonotonicTimestamp(msg string, err error) error { return new_(KindMonotonicTimestamp, msg, err) }

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if te, ok := err.(*TypedError); ok {
			if te.Kind == kind {
				return true
			}
			err = te.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
