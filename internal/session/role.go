package session

import "strings"

// Role is the canonical account kind. The zero value means unknown.
type Role int

const (
	RoleCompany Role = iota + 1
	RoleContentCreator
)

const (
	rolePrefix        = "ROLE_"
	rawCompany        = "COMPANY"
	rawContentCreator = "CONTENT_CREATOR"
)

// String returns the prefixed form stored under the role fact.
func (r Role) String() string {
	if raw := r.Raw(); raw != "" {
		return rolePrefix + raw
	}
	return ""
}

// Raw returns the un-prefixed role token.
func (r Role) Raw() string {
	switch r {
	case RoleCompany:
		return rawCompany
	case RoleContentCreator:
		return rawContentCreator
	default:
		return ""
	}
}

// classifyRoleString applies the substring rules used for loosely formatted
// role values: anything mentioning COMPANY is a company, then anything
// mentioning CONTENT or CREATOR is a content creator.
func classifyRoleString(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case s == "":
		return 0, false
	case strings.Contains(s, rawCompany):
		return RoleCompany, true
	case strings.Contains(s, "CONTENT"), strings.Contains(s, "CREATOR"):
		return RoleContentCreator, true
	default:
		return 0, false
	}
}

func denotesCompany(role string) bool {
	return strings.Contains(strings.ToUpper(role), rawCompany)
}
