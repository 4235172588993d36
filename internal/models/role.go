package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the closed set of account roles.
type Role uint8

const (
	roleUnknown Role = iota
	RoleStudent
	RoleTeacher
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleStudent:    "STUDENT",
	RoleTeacher:    "TEACHER",
	RoleAdmin:      "ADMIN",
	RoleSuperAdmin: "SUPERADMIN",
}

// Roles lists every valid role.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin}
}

// ParseRole converts the persisted representation into a Role.
func ParseRole(raw string) (Role, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	for role, name := range roleNames {
		if name == normalized {
			return role, nil
		}
	}
	return roleUnknown, fmt.Errorf("unknown role %q", raw)
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// MarshalText implements encoding.TextMarshaler. An unset role encodes as
// empty text; other out-of-range values are rejected.
func (r Role) MarshalText() ([]byte, error) {
	if r == roleUnknown {
		return []byte{}, nil
	}
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", r)
	}
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return r.UnmarshalText([]byte(v))
	case []byte:
		return r.UnmarshalText(v)
	default:
		return fmt.Errorf("unsupported role type %T", src)
	}
}
