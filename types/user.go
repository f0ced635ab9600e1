package types

import (
	"encoding/json"
	"time"
)

// Role is the closed set of community roles a user can hold.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
)

// Legacy role labels still found in stored data.
const (
	legacyRoleSenior = "senior"
	legacyRoleJunior = "junior"
)

// CanonicalRole maps retired role labels onto their current value.
// Any other label is returned unchanged.
func CanonicalRole(label string) string {
	switch label {
	case legacyRoleSenior:
		return string(RoleFaculty)
	case legacyRoleJunior:
		return string(RoleStudent)
	default:
		return label
	}
}

// UnmarshalJSON decodes a role and rewrites retired labels.
func (r *Role) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*r = Role(CanonicalRole(label))
	return nil
}

// Valid reports whether the role is one of the current roles.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleFaculty
}

// User represents a member of the university community.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id"`

	// Name is the user's display name.
	Name string `json:"name"`

	// Email is the user's email address. It is also the login name.
	Email string `json:"email"`

	// Avatar is an optional image reference for the user's picture.
	Avatar string `json:"avatar,omitempty"`

	// Department is the academic department the user belongs to.
	Department string `json:"department"`

	// Year is the study year for students or a free-form label for faculty.
	Year string `json:"year"`

	// Role is either student or faculty.
	Role Role `json:"role"`

	// Bio is an optional short self description.
	Bio string `json:"bio,omitempty"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// It is persisted with the users collection but never exposed in API responses.
	PasswordHash string `json:"passwordHash,omitempty"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"createdAt"`
}

// Public returns a copy of the user that is safe to embed in responses
// and in other records.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// PlaceholderUser is substituted for an author that cannot be resolved.
func PlaceholderUser(id string, createdAt time.Time) User {
	return User{
		ID:         id,
		Name:       "Unknown User",
		Email:      "",
		Department: "N/A",
		Year:       "N/A",
		Role:       RoleStudent,
		CreatedAt:  createdAt,
	}
}
