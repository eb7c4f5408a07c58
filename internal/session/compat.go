package session

import "strings"

// The facts below are written redundantly so that data produced by older
// clients keeps resolving. New code should go through Store.Kind.

type fact int

const (
	factToken fact = iota
	factRole
	factRawRole
	factUserType
	factIsContentCreator
	factIsCompany
)

var allFacts = []fact{factToken, factRole, factRawRole, factUserType, factIsContentCreator, factIsCompany}

var cookieKeys = map[fact]string{
	factToken:            "auth_token",
	factRole:             "user_role",
	factRawRole:          "user_role_raw",
	factUserType:         "user_type",
	factIsContentCreator: "user_is_content_creator",
	factIsCompany:        "user_is_company",
}

var storageKeys = map[fact]string{
	factToken:            "token",
	factRole:             "userRole",
	factRawRole:          "userRoleRaw",
	factUserType:         "userType",
	factIsContentCreator: "userIsContentCreator",
	factIsCompany:        "userIsCompany",
}

// tierReader reads one fact from one tier; a failed read is a miss.
type tierReader func(f fact) (string, bool)

// roleFacts is the set of values written by SetRole.
type roleFacts map[fact]string

func newRoleFacts(role string, rawRole string, isContentCreator bool) roleFacts {
	userType := rawCompany
	if isContentCreator {
		userType = rawContentCreator
	}

	return roleFacts{
		factRole:             role,
		factRawRole:          rawRole,
		factUserType:         userType,
		factIsContentCreator: formatBool(isContentCreator),
		factIsCompany:        formatBool(!isContentCreator),
	}
}

// resolution is the outcome of the precedence chain on a single tier.
type resolution struct {
	kind Role
	role string
	raw  string
}

// resolveTier applies steps 1-4 of the role precedence chain to one tier:
// userType, then isContentCreator=true, then isCompany=true, then the stored
// role string. The stored role string is returned verbatim; its kind is only
// known when the substring rules recognise it.
func resolveTier(read tierReader) (resolution, bool) {
	if userType, ok := read(factUserType); ok {
		switch normalize(userType) {
		case rawContentCreator:
			return resolution{kind: RoleContentCreator, role: RoleContentCreator.String(), raw: rawContentCreator}, true
		case rawCompany:
			return resolution{kind: RoleCompany, role: RoleCompany.String(), raw: rawCompany}, true
		}
	}

	if flag, ok := read(factIsContentCreator); ok && parseTrue(flag) {
		return resolution{kind: RoleContentCreator, role: RoleContentCreator.String(), raw: rawContentCreator}, true
	}

	if flag, ok := read(factIsCompany); ok && parseTrue(flag) {
		return resolution{kind: RoleCompany, role: RoleCompany.String(), raw: rawCompany}, true
	}

	role, hasRole := read(factRole)
	raw, hasRaw := read(factRawRole)
	if !hasRole && !hasRaw {
		return resolution{}, false
	}

	res := resolution{role: role, raw: raw}
	if res.raw == "" {
		res.raw = strings.TrimPrefix(normalize(role), rolePrefix)
	}
	if kind, ok := classifyRoleString(role); ok {
		res.kind = kind
	} else if kind, ok := classifyRoleString(raw); ok {
		res.kind = kind
	}

	return res, true
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func parseTrue(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
