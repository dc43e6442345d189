package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Severity of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event kinds emitted by the engine.
const (
	KindFraudDetected      = "game.fraud_detected"
	KindSuspiciousActivity = "security.suspicious_activity"
	KindCreditsRefund      = "credits.refund"
	KindGameWin            = "game.win"
)

// Event is one security-relevant occurrence handed to the audit sink.
type Event struct {
	Kind      string
	Severity  Severity
	AccountID string
	Details   map[string]any
}

// Sink accepts audit events. Implementations must not block the caller for
// long; the click path emits events inline.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes audit events to the process logger. External escalation
// (suspension policy, SIEM shipping) consumes these log lines downstream.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	fields := []zap.Field{
		zap.String("kind", ev.Kind),
		zap.String("severity", string(ev.Severity)),
	}
	if ev.AccountID != "" {
		fields = append(fields, zap.String("account_id", ev.AccountID))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("details", ev.Details))
	}

	switch ev.Severity {
	case SeverityCritical, SeverityError:
		s.logger.Error("audit event", fields...)
	case SeverityWarning:
		s.logger.Warn("audit event", fields...)
	default:
		s.logger.Info("audit event", fields...)
	}
}

// NopSink swallows events. Used by tests that do not assert on auditing.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// Recorder captures events for assertions in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
