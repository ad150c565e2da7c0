// Package audit keeps a size-bounded, append-only record of administrative
// actions.
//
// # Recording
//
// Handlers record after their primary mutation succeeds. Record has no error
// return: audit is advisory, so a failed write is logged and counted but the
// mutation that triggered it stands.
//
//	auditLog.Record(ctx, caller.Identity.ID, audit.ActionUpdateUserRole, targetID,
//		map[string]interface{}{"oldRole": "user", "newRole": "admin"})
//
// # Retention
//
// Every write is followed by a trim that keeps the newest entries (1000 by
// default) ordered by createdAt, with the ULID as tie-break. The trim is not
// atomic against concurrent writers; overlapping trims delete overlapping
// sets and the log still converges to the cap. A Sweeper runs Trim on a
// cron schedule as a backstop (see cmd/audit-sweeper).
//
// # Archiving
//
// An optional Archiver sees evicted entries before deletion. S3Archiver
// uploads them as NDJSON. A failed upload is logged and eviction proceeds.
package audit
