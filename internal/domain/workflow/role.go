package workflow

// Role is an organizational role code held by users
type Role string

const (
	RoleAdmin             Role = "ADMIN"
	RoleDG                Role = "DG"
	RoleDAAF              Role = "DAAF"
	RoleDAF               Role = "DAF"
	RoleSAF               Role = "SAF"
	RoleCB                Role = "CB"
	RoleSDCT              Role = "SDCT"
	RoleDirecteur         Role = "DIRECTEUR"
	RoleSousDirecteur     Role = "SOUS_DIRECTEUR"
	RoleChefService       Role = "CHEF_SERVICE"
	RoleTresorerie        Role = "TRESORERIE"
	RoleAgentComptable    Role = "AGENT_COMPTABLE"
	RoleCommissionMarches Role = "COMMISSION_MARCHES"
	RoleAuditeur          Role = "AUDITEUR"
	RoleOperateur         Role = "OPERATEUR"
	RoleAgent             Role = "AGENT"
)

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleDG, RoleDAAF, RoleDAF, RoleSAF, RoleCB, RoleSDCT,
		RoleDirecteur, RoleSousDirecteur, RoleChefService, RoleTresorerie,
		RoleAgentComptable, RoleCommissionMarches, RoleAuditeur, RoleOperateur, RoleAgent:
		return true
	}
	return false
}

// Roles converts raw role codes
func Roles(codes ...string) []Role {
	out := make([]Role, 0, len(codes))
	for _, c := range codes {
		out = append(out, Role(c))
	}
	return out
}

// ContainsRole reports whether role is in roles
func ContainsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// AnyRole reports whether held contains at least one of wanted.
// ADMIN in held always matches.
func AnyRole(held []Role, wanted []Role) bool {
	if ContainsRole(held, RoleAdmin) {
		return true
	}
	for _, w := range wanted {
		if ContainsRole(held, w) {
			return true
		}
	}
	return false
}
