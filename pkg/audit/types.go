package audit

import (
	"encoding/json"
	"strings"
	"time"
)

// KeyPrefix prefixes every audit entry key
const KeyPrefix = "admin_log_"

// Key returns the store key of the entry with id
func Key(id string) string {
	return KeyPrefix + id
}

// DefaultRetention is the number of entries kept after every trim
const DefaultRetention = 1000

// Action names a privileged operation
type Action string

const (
	ActionUpdateUserRole     Action = "update_user_role"
	ActionUpdateAccountType  Action = "update_account_type"
	ActionToggleUserStatus   Action = "toggle_user_status"
	ActionDeleteUser         Action = "delete_user"
	ActionGrantRoleBootstrap Action = "grant_role_bootstrap"
)

// SystemActor is the admin ID recorded for operator commands run outside
// the HTTP API
const SystemActor = "system"

// Entry is one immutable audit record
type Entry struct {
	ID        string                 `json:"id"`
	AdminID   string                 `json:"adminId"`
	Action    Action                 `json:"action"`
	TargetID  string                 `json:"targetId,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// decodeEntry parses a stored entry. The ID always comes from the key. An
// undecodable record keeps a zero timestamp so the trim evicts it first.
func decodeEntry(key string, data []byte) Entry {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		e = Entry{}
	}
	e.ID = strings.TrimPrefix(key, KeyPrefix)
	return e
}

// newerFirst orders entries by createdAt descending, then id descending
func newerFirst(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
