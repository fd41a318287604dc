package domain

// Roles understood by the API.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an account that can call the authenticated API.
type User struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	FullName       string `json:"full_name,omitempty"`
	Role           string `json:"role"`
	IsActive       bool   `json:"is_active"`
	HashedPassword string `json:"-"`
}

// Principal returns the authenticated identity derived from the user.
func (u *User) Principal() Principal {
	return Principal{Username: u.Username, Email: u.Email, Role: u.Role}
}

// Principal is the identity resolved from a bearer credential.
type Principal struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// IsAdmin returns true if the principal may see every user's data.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessUser returns true if the principal may read data for userID.
func (p Principal) CanAccessUser(userID string) bool {
	return p.IsAdmin() || (userID != "" && userID == p.Username)
}
