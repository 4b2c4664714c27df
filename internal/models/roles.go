package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a single capability flag. Roles combine into a Roles set.
type Role uint8

const (
	RoleAdmin Role = 1 << iota
	RoleHobbyist
	RoleCataloguer
)

var roleNames = map[Role]string{
	RoleAdmin:      "admin",
	RoleHobbyist:   "hobbyist",
	RoleCataloguer: "cataloguer",
}

// allRoles fixes the serialization order.
var allRoles = []Role{RoleAdmin, RoleHobbyist, RoleCataloguer}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

func ParseRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for role, n := range roleNames {
		if n == name {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// Roles is a set of Role flags. It is stored as a small integer and
// serialized as a list of role names.
type Roles uint8

func NewRoles(roles ...Role) Roles {
	var set Roles
	for _, r := range roles {
		set |= Roles(r)
	}
	return set
}

func (s Roles) Has(r Role) bool {
	return s&Roles(r) != 0
}

func (s Roles) With(r Role) Roles {
	return s | Roles(r)
}

func (s Roles) Without(r Role) Roles {
	return s &^ Roles(r)
}

// Valid reports whether s contains only known flags.
func (s Roles) Valid() bool {
	var known Roles
	for _, r := range allRoles {
		known |= Roles(r)
	}
	return s&^known == 0
}

func (s Roles) List() []Role {
	out := make([]Role, 0, len(allRoles))
	for _, r := range allRoles {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s Roles) Names() []string {
	roles := s.List()
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.String())
	}
	return names
}

func (s Roles) String() string {
	return strings.Join(s.Names(), ",")
}

func ParseRoles(names []string) (Roles, error) {
	var set Roles
	for _, name := range names {
		role, err := ParseRole(name)
		if err != nil {
			return 0, err
		}
		set = set.With(role)
	}
	return set, nil
}

func (s Roles) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *Roles) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("roles must be a list of names: %w", err)
	}
	parsed, err := ParseRoles(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
