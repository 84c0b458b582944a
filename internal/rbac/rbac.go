package rbac

type Role string
type Action string

const (
	RoleSystemAdmin Role = "system_admin"
	RoleSuperAdmin  Role = "super_admin"
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleEditor      Role = "editor"
	RoleWriter      Role = "writer"
	RoleViewer      Role = "viewer"
)

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionPublish Action = "publish"
	ActionApprove Action = "approve"
	ActionManage  Action = "manage"
	ActionSystem  Action = "system"
)

var allowLists = map[Action][]Role{
	ActionRead:    {RoleSystemAdmin, RoleSuperAdmin, RoleAdmin, RoleManager, RoleEditor, RoleWriter, RoleViewer},
	ActionWrite:   {RoleSystemAdmin, RoleSuperAdmin, RoleAdmin, RoleManager, RoleEditor, RoleWriter},
	ActionPublish: {RoleSystemAdmin, RoleSuperAdmin, RoleAdmin, RoleManager, RoleEditor},
	ActionApprove: {RoleSystemAdmin, RoleSuperAdmin, RoleAdmin, RoleManager},
	ActionManage:  {RoleSystemAdmin, RoleSuperAdmin, RoleAdmin},
	ActionSystem:  {RoleSystemAdmin},
}

var ranks = map[Role]int{
	RoleViewer:      1,
	RoleWriter:      2,
	RoleEditor:      3,
	RoleManager:     4,
	RoleAdmin:       5,
	RoleSuperAdmin:  6,
	RoleSystemAdmin: 7,
}

func Can(role Role, action Action) bool {
	for _, allowed := range allowLists[action] {
		if allowed == role {
			return true
		}
	}
	return false
}

func Normalize(role string) Role {
	if _, ok := ranks[Role(role)]; ok {
		return Role(role)
	}
	return RoleViewer
}

func Valid(role string) bool {
	_, ok := ranks[Role(role)]
	return ok
}

// Rank orders roles by privilege; unknown roles rank zero.
func Rank(role Role) int {
	return ranks[role]
}

// CanGrant reports whether actor may assign target. Nobody grants above their
// own rank and only a system admin grants system_admin.
func CanGrant(actor, target Role) bool {
	if !Can(actor, ActionManage) || Rank(target) == 0 {
		return false
	}
	if target == RoleSystemAdmin {
		return actor == RoleSystemAdmin
	}
	return Rank(target) <= Rank(actor)
}
