package model

import (
	"fmt"
	"slices"
	"strconv"
	"time"
)

// User represents an authentication user.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	Teams        []string   `json:"teams"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleUser    = "user"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:   3,
		RoleManager: 2,
		RoleUser:    1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidatePassword checks that a password is acceptable.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Principal is the capability set of the caller of an operation. It is
// computed once per request and passed by value.
type Principal struct {
	UserID    string
	IsAdmin   bool
	IsManager bool
	TeamIDs   []string
}

// SystemUserID is the acting user of scheduled operations.
const SystemUserID = "system"

// SystemPrincipal acts for scheduled jobs.
var SystemPrincipal = Principal{UserID: SystemUserID, IsAdmin: true, IsManager: true}

// PrincipalFor builds the principal of a user with the given role and teams.
func PrincipalFor(userID int64, role string, teams []string) Principal {
	return Principal{
		UserID:    strconv.FormatInt(userID, 10),
		IsAdmin:   role == RoleAdmin,
		IsManager: RoleAtLeast(role, RoleManager),
		TeamIDs:   teams,
	}
}

// InTeam reports whether the principal is a member of team.
func (p Principal) InTeam(team string) bool {
	return slices.Contains(p.TeamIDs, team)
}

// CanAccess reports whether the principal may modify a reservation: its
// owner, a member of its team, or an admin.
func (p Principal) CanAccess(r *Reservation) bool {
	if p.IsAdmin || r.UserID == p.UserID {
		return true
	}
	return r.TeamID != nil && p.InTeam(*r.TeamID)
}
