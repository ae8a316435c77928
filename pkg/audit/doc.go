// Package audit records who changed the permission surface and when.
//
// Every grant, revocation, role creation and invite lifecycle step
// produces one event. Recording is best effort: an unreachable sink
// must never fail the operation it describes, so recorders log and
// swallow their own errors.
//
// Recorder implementations:
//
//   - DBRecorder: durable trail in the audit_events table, queryable
//     through the admin API
//   - FileRecorder: JSON lines, one event per line, for shipping to an
//     external log pipeline
//   - MultiRecorder: fan-out to several sinks
//   - NopRecorder: the default when auditing is disabled
package audit
