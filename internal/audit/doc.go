// Package audit defines the audit entry model, sink interfaces, and the
// bounded ring buffer that holds security events locally until they are
// flushed to a remote collector. Emitting is best-effort everywhere: sinks
// never return errors and must never affect the outcome of the operation
// being logged.
package audit
