// filepath: internal/audit/logger_auditor.go
package audit

import (
	"context"

	"lostfound/internal/logging"
	"lostfound/internal/services"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Ensure LoggerAuditor implements services.Auditor
var _ services.Auditor = (*LoggerAuditor)(nil)

// LoggerAuditor writes audit events to the application log.
type LoggerAuditor struct {
	enabled bool
	logger  logrus.FieldLogger
}

// Option configures a LoggerAuditor.
type Option func(*LoggerAuditor)

// WithLogger sends events to l instead of logging.Log.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *LoggerAuditor) { a.logger = l }
}

// NewLoggerAuditor creates a new instance of LoggerAuditor.
func NewLoggerAuditor(enabled bool, opts ...Option) *LoggerAuditor {
	a := &LoggerAuditor{enabled: enabled}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Log records an event using logrus if auditing is enabled. Every event
// gets a ULID so entries from concurrent processes sort by time.
func (a *LoggerAuditor) Log(ctx context.Context, action string, actor string, resource string, details map[string]interface{}) {
	if !a.enabled {
		return
	}

	fields := logrus.Fields{
		"audit_id":       ulid.Make().String(),
		"audit_action":   action,
		"audit_actor":    actor,
		"audit_resource": resource,
	}
	for k, v := range details {
		fields["detail."+k] = v
	}

	logger := a.logger
	if logger == nil {
		logger = logging.Log
	}
	// Fixed message so audit lines are easy to grep.
	logger.WithFields(fields).Info("AUDIT EVENT")
}
