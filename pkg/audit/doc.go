// Package audit records security-relevant actions: signups, logins, account and
// role changes, organization and team mutations, and authorization denials.
//
// # Sinks
//
// Events are written through the Logger interface. Available sinks:
//
//   - SlogLogger: structured log lines through the service logger
//   - FileLogger: newline-delimited JSON with size-based rotation
//   - S3Archiver: batched NDJSON objects in a bucket, partitioned by day
//   - MultiLogger: fans out to several sinks, async by default
//
// # Usage
//
//	logger := audit.NewMultiLogger(audit.NewSlogLogger(nil), fileLogger)
//	handler = audit.NewMiddleware(logger).Handler(handler)
//
// Handlers build events from the request context and emit them:
//
//	event := audit.NewEvent(ctx, audit.EventTypeTeamCreate, audit.EventStatusSuccess, actor).
//		On(audit.ResourceTypeTeam, team.ID)
//	audit.Emit(ctx, audit.FromContext(ctx), event)
//
// Emit never fails the caller; sink errors are logged and counted.
package audit
