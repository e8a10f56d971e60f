// Package bus wraps nats.go with the fixed set of subjects the trading core
// publishes/subscribes to, so no call site hand-rolls its own
// json.Marshal + nc.Publish pair.
package bus

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Subjects mirrors the fixed subject tree used across the trading core.
// A per-market/-mode suffix is appended by callers that need it.
const (
	SubjectBarsPrefix       = "bars"
	SubjectSignalsPrefix    = "signals"
	SubjectOrdersPrefix     = "orders"
	SubjectFillsPrefix      = "fills"
	SubjectRiskAlertsPrefix = "risk.alerts"
	SubjectKillSwitch       = "risk.kill_switch"
	SubjectHealth           = "ops.health"
)

// Scoped builds a market/mode-scoped subject, e.g. Scoped(SubjectFillsPrefix, "crypto") -> "fills.crypto".
func Scoped(prefix, scope string) string {
	return fmt.Sprintf("%s.%s", prefix, scope)
}

// Bus is a thin typed wrapper over a *nats.Conn.
type Bus struct {
	conn *nats.Conn
}

// New wraps an already-connected NATS connection.
func New(conn *nats.Conn) *Bus {
	return &Bus{conn: conn}
}

// Connect dials the given NATS server URL.
func Connect(url string) (*Bus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return New(conn), nil
}

// Publish JSON-encodes payload and publishes it on subject.
func (b *Bus) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", subject, err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe decodes every message on subject as T and invokes handler.
// Decode errors are passed to handler's error path rather than dropped.
func Subscribe[T any](b *Bus, subject string, handler func(T, error)) (*nats.Subscription, error) {
	return b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var payload T
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			handler(payload, fmt.Errorf("unmarshal %s payload: %w", subject, err))
			return
		}
		handler(payload, nil)
	})
}

// Close closes the underlying connection without draining it first.
func (b *Bus) Close() {
	b.conn.Close()
}

// Conn exposes the underlying connection for callers needing raw access
// (e.g. request/reply or JetStream setup outside this package's scope).
func (b *Bus) Conn() *nats.Conn {
	return b.conn
}
