package assignments

import "time"

// Assignment links a user to a role.
type Assignment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	RoleID     int64     `json:"role_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AssignmentDetail is an assignment joined with its role for listing.
type AssignmentDetail struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	RoleID       int64     `json:"role_id"`
	RoleName     string    `json:"role_name"`
	RoleIsActive bool      `json:"role_is_active"`
	RoleIsPreset bool      `json:"role_is_preset"`
	AssignedAt   time.Time `json:"assigned_at"`
}
