// Package logging is the ambient stdlib-log wrapper used outside the
// audit trail: process lifecycle, adapter connection errors, and
// degraded-path notices. Audit-worthy domain events go through
// capability.AuditSink instead (internal/auditlog), per §4.8.
package logging

import (
	"log"
	"os"
)

// Logger tags every line with a tenant/request id, matching the teacher's
// practice of prefixing log lines with request context rather than
// structuring them.
type Logger struct {
	base *log.Logger
}

// New builds a Logger writing to stderr with a fixed prefix.
func New(component string) *Logger {
	return &Logger{base: log.New(os.Stderr, "["+component+"] ", log.LstdFlags)}
}

// WithRequest returns a Logger that prefixes subsequent lines with tenant
// and request identifiers.
func (l *Logger) WithRequest(tenantID, requestID string) *Logger {
	return &Logger{base: log.New(l.base.Writer(), l.base.Prefix()+"tenant="+tenantID+" req="+requestID+" ", log.LstdFlags)}
}

// Infof logs an informational line.
func (l *Logger) Infof(format string, args ...any) { l.base.Printf(format, args...) }

// Errorf logs an error line.
func (l *Logger) Errorf(format string, args ...any) { l.base.Printf("ERROR: "+format, args...) }
