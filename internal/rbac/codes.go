package rbac

// Permission codes guarding the HTTP surface.
const (
	PermUserEdit   = "sys:user:edit"
	PermUserStatus = "sys:user:status"

	PermRolePerm = "sys:role:perm"
	PermRoleMenu = "sys:role:menu"
	PermRoleList = "sys:role:list"

	PermPermissionList   = "sys:permission:list"
	PermPermissionAdd    = "sys:permission:add"
	PermPermissionEdit   = "sys:permission:edit"
	PermPermissionDelete = "sys:permission:del"
	PermPermissionStatus = "sys:permission:status"

	PermMenuList   = "sys:menu:list"
	PermMenuEdit   = "sys:menu:edit"
	PermMenuStatus = "sys:menu:status"
)
