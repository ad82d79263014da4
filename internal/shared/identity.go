package shared

// Role is the account role reported by the backend.
type Role string

// Status is the account status reported by the backend.
type Status string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"

	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Identity is the signed-in user as cached in the session.
type Identity struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// IsActive reports whether the account is active.
func (i Identity) IsActive() bool {
	return i.Status == StatusActive
}
