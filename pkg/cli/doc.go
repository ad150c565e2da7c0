// Package cli provides the controlplane-cli operator commands.
//
// The commands talk to the key-value store directly rather than through the
// HTTP API, so they work before any administrator exists.
//
// # Commands
//
// grant-role: Write a role record and record it in the audit log as "system"
//
//	controlplane-cli grant-role --user 8f14e45f --role super_admin
//
// audit-tail: Print the newest audit entries
//
//	controlplane-cli audit-tail --limit 50
//	controlplane-cli audit-tail --json | jq .
//
// audit-trim: Evict entries beyond the retention limit
//
//	controlplane-cli audit-trim
//
// Store and audit settings come from the same CP_* environment and config
// file as the server.
package cli
