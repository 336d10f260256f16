package model

// Permission names a single capability checked by the permission gate.
type Permission string

// Permissions.
const (
	PermOrgManage       Permission = "org:manage"
	PermMemberInvite    Permission = "member:invite"
	PermWarehouseWrite  Permission = "warehouse:write"
	PermWarehouseDelete Permission = "warehouse:delete"
	PermProductRead     Permission = "product:read"
	PermProductWrite    Permission = "product:write"
	PermProductDelete   Permission = "product:delete"
	PermStockAdjust     Permission = "stock:adjust"
	PermStockTransfer   Permission = "stock:transfer"
	PermPriceWrite      Permission = "price:write"
	PermOrderWrite      Permission = "order:write"
	PermOrderRead       Permission = "order:read"
)

// rolePermissions is the explicit permission table. Every role in Roles must
// have an entry; TestRolePermissionsExhaustive enforces it.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermOrgManage, PermMemberInvite,
		PermWarehouseWrite, PermWarehouseDelete,
		PermProductRead, PermProductWrite, PermProductDelete,
		PermStockAdjust, PermStockTransfer, PermPriceWrite,
		PermOrderWrite, PermOrderRead,
	},
	RoleManager: {
		PermMemberInvite,
		PermWarehouseWrite, PermWarehouseDelete,
		PermProductRead, PermProductWrite, PermProductDelete,
		PermStockAdjust, PermStockTransfer, PermPriceWrite,
		PermOrderWrite, PermOrderRead,
	},
	RoleEmployee: {
		PermProductRead, PermProductWrite,
		PermStockAdjust, PermStockTransfer,
		PermOrderWrite, PermOrderRead,
	},
	RoleViewer: {
		PermProductRead, PermOrderRead,
	},
}

// Permissions returns the permission set granted to the role.
func (r Role) Permissions() []Permission {
	return rolePermissions[r]
}

// Can reports whether the role grants every listed permission.
func (r Role) Can(perms ...Permission) bool {
	granted := rolePermissions[r]
	if granted == nil {
		return false
	}
	for _, p := range perms {
		found := false
		for _, g := range granted {
			if g == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
