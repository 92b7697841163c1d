package grants

// Grant is one role-to-permission binding row. The pair is unique; IsActive
// is a live suspension toggle, not a revocation marker — revoked bindings
// are deleted outright.
type Grant struct {
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
	IsActive     bool  `json:"is_active"`
}

// GrantDetail is a binding row joined with its permission definition.
type GrantDetail struct {
	RoleID           int64  `json:"role_id"`
	PermissionID     int64  `json:"permission_id"`
	IsActive         bool   `json:"is_active"`
	SystemName       string `json:"system_name"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	PermissionActive bool   `json:"permission_active"`
}

// Outcome reports what Grant actually did.
type Outcome string

const (
	OutcomeGranted        Outcome = "granted"
	OutcomeReactivated    Outcome = "reactivated"
	OutcomeAlreadyGranted Outcome = "already granted"
)

// ReconcileResult summarizes a bulk reconciliation.
type ReconcileResult struct {
	Added      int     `json:"added"`
	Removed    int     `json:"removed"`
	Unchanged  int     `json:"unchanged"`
	SkippedIDs []int64 `json:"skipped_ids,omitempty"`
}
