// internal/domain/models/user.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account holder. Email is the login identifier and is stored
// lowercase; EmailCI is the folded form used for unique matching.
type User struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name" json:"name"`
	NameCI string             `bson:"name_ci" json:"-"` // lowercase, diacritics-stripped

	Email        string `bson:"email" json:"email"`
	EmailCI      string `bson:"email_ci" json:"-"`
	PasswordHash string `bson:"password_hash,omitempty" json:"-"` // bcrypt hash (never in JSON)

	// IANA zone name; "today" for streaks and toggles is computed in it.
	Timezone string `bson:"timezone" json:"timezone"`

	Role   string `bson:"role" json:"role"`
	Plan   string `bson:"plan" json:"plan"`
	Status string `bson:"status" json:"status"` // active, disabled

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// User roles
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// AllRoles returns all valid user roles.
func AllRoles() []string {
	return []string{RoleMember, RoleAdmin}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// Plans
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// IsValidPlan checks if a plan name is known.
func IsValidPlan(plan string) bool {
	return plan == PlanFree || plan == PlanPro
}

// Account statuses. A disabled account cannot sign in and its sessions stop
// resolving.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// IsValidStatus checks if an account status is known.
func IsValidStatus(s string) bool {
	return s == StatusActive || s == StatusDisabled
}

// IsDisabled reports whether the stored status marks the account disabled.
// Legacy rows may carry mixed case.
func (u User) IsDisabled() bool {
	return strings.EqualFold(strings.TrimSpace(u.Status), StatusDisabled)
}
