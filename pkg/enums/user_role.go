package enums

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRole marks any role string outside the recognized set.
var ErrInvalidRole = errors.New("invalid user role")

// UserRole is the storefront authorization role.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleSeller UserRole = "seller"
)

var validUserRoles = []UserRole{
	UserRoleUser,
	UserRoleSeller,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole trims and lower-cases raw input before matching it against the known roles.
func ParseUserRole(value string) (UserRole, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validUserRoles {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidRole, value)
}
