package directory

import "strings"

// Dataset is a complete directory snapshot with fixed ids.
type Dataset struct {
	Users           []User
	Roles           []Role
	Permissions     []Permission
	Menus           []Menu
	UserRoles       []UserRole
	RolePermissions []RolePermission
	RoleMenus       []RoleMenu
}

// DefaultPassword is the password of every default account.
const DefaultPassword = "password123"

// DefaultDataset returns the bootstrap directory: four users, the ADMIN/OPS/GUEST roles, the
// sys:* permission tree and the system menu tree. Every user gets passwordHash.
func DefaultDataset(passwordHash string) Dataset {
	var ds Dataset

	for i, u := range []struct{ username, nickname string }{
		{"admin", "Administrator"},
		{"manager", "Manager"},
		{"jerry", "Jerry"},
		{"tom", "Tom"},
	} {
		ds.Users = append(ds.Users, User{
			ID:           int64(i + 1),
			Username:     u.username,
			PasswordHash: passwordHash,
			Nickname:     u.nickname,
			Email:        u.username + "@example.com",
			Status:       StatusEnabled,
		})
	}

	const (
		roleAdmin int64 = 1
		roleOps   int64 = 2
		roleGuest int64 = 3
	)
	ds.Roles = []Role{
		{ID: roleAdmin, Code: "ADMIN", Name: "Administrator", Description: "Full access", Status: StatusEnabled},
		{ID: roleOps, Code: "OPS", Name: "Operations", Description: "User and role operations", Status: StatusEnabled},
		{ID: roleGuest, Code: "GUEST", Name: "Guest", Description: "Read only", Status: StatusEnabled},
	}
	ds.UserRoles = []UserRole{
		{UserID: 1, RoleID: roleAdmin},
		{UserID: 2, RoleID: roleAdmin},
		{UserID: 3, RoleID: roleOps},
		{UserID: 4, RoleID: roleGuest},
	}

	var nextPerm int64
	addPerm := func(parent *int64, code, name string, kind PermissionKind, path, method string, sort int) int64 {
		nextPerm++
		p := Permission{
			ID:       nextPerm,
			ParentID: parent,
			Code:     code,
			Name:     name,
			Kind:     kind,
			Path:     path,
			Sort:     intPtr(sort),
			Status:   StatusEnabled,
		}
		if method != "" {
			p.Method = strPtr(method)
		}
		ds.Permissions = append(ds.Permissions, p)
		return p.ID
	}

	root := addPerm(nil, "sys:manage", "System", KindMenu, "", "", 1)
	for i, section := range []struct{ key, label, path string }{
		{"user", "Users", "/users"},
		{"role", "Roles", "/roles"},
		{"permission", "Permissions", "/permissions"},
		{"menu", "Menus", "/menus"},
	} {
		base := (i + 1) * 20
		prefix := "sys:" + section.key
		group := addPerm(int64Ptr(root), prefix, section.label, KindMenu, section.path, "", base)
		parent := int64Ptr(group)
		for j, action := range []string{"view", "create", "update", "delete", "toggle"} {
			addPerm(parent, prefix+":"+action, strings.ToUpper(action[:1])+action[1:]+" "+section.key, KindButton, "", "", base+1+j)
		}
		api := "/api" + section.path
		addPerm(parent, prefix+":list", "List "+section.key, KindAPI, api, "GET", base+6)
		addPerm(parent, prefix+":add", "Add "+section.key, KindAPI, api, "POST", base+7)
		addPerm(parent, prefix+":edit", "Edit "+section.key, KindAPI, api+"/*", "PUT", base+8)
		addPerm(parent, prefix+":del", "Delete "+section.key, KindAPI, api+"/*", "DELETE", base+9)
		addPerm(parent, prefix+":status", "Toggle "+section.key, KindAPI, api+"/*/toggle", "PUT", base+10)
		if section.key == "role" {
			addPerm(parent, "sys:role:perm", "Role permissions", KindAPI, "/api/roles/*/permissions", "PUT", base+11)
			addPerm(parent, "sys:role:menu", "Role menus", KindAPI, "/api/roles/*/menus", "PUT", base+12)
		}
	}

	menuRows := []struct {
		code, name, path, component, icon string
	}{
		{"system", "System", "", "", "Setting"},
		{"user", "Users", "/users", "UserList", "User"},
		{"role", "Roles", "/roles", "RoleList", "UserFilled"},
		{"permission", "Permissions", "/permissions", "PermissionList", "Key"},
		{"menu", "Menus", "/menus", "MenuList", "Menu"},
	}
	for i, row := range menuRows {
		m := Menu{
			ID:        int64(i + 1),
			Code:      row.code,
			Name:      row.name,
			Path:      row.path,
			Component: row.component,
			Icon:      row.icon,
			Sort:      intPtr(i + 1),
			Status:    StatusEnabled,
		}
		if i > 0 {
			m.ParentID = int64Ptr(1)
		}
		ds.Menus = append(ds.Menus, m)
	}

	for _, p := range ds.Permissions {
		ds.RolePermissions = append(ds.RolePermissions, RolePermission{RoleID: roleAdmin, PermissionID: p.ID})
	}
	for _, p := range ds.Permissions {
		if (strings.HasPrefix(p.Code, "sys:user:") || strings.HasPrefix(p.Code, "sys:role:")) && !strings.Contains(p.Code, "del") {
			ds.RolePermissions = append(ds.RolePermissions, RolePermission{RoleID: roleOps, PermissionID: p.ID})
		}
	}
	for _, p := range ds.Permissions {
		if strings.Contains(p.Code, "view") || strings.Contains(p.Code, "list") || p.Code == "sys:manage" {
			ds.RolePermissions = append(ds.RolePermissions, RolePermission{RoleID: roleGuest, PermissionID: p.ID})
		}
	}

	for _, m := range ds.Menus {
		ds.RoleMenus = append(ds.RoleMenus, RoleMenu{RoleID: roleAdmin, MenuID: m.ID})
		switch m.Code {
		case "system", "user":
			ds.RoleMenus = append(ds.RoleMenus,
				RoleMenu{RoleID: roleOps, MenuID: m.ID},
				RoleMenu{RoleID: roleGuest, MenuID: m.ID})
		case "role":
			ds.RoleMenus = append(ds.RoleMenus, RoleMenu{RoleID: roleOps, MenuID: m.ID})
		}
	}
	return ds
}

// Load copies a dataset into the store.
func (m *MemoryStore) Load(ds Dataset) {
	for _, u := range ds.Users {
		m.AddUser(u)
	}
	for _, r := range ds.Roles {
		m.AddRole(r)
	}
	for _, p := range ds.Permissions {
		m.AddPermission(p)
	}
	for _, menu := range ds.Menus {
		m.AddMenu(menu)
	}
	for _, ur := range ds.UserRoles {
		m.AssignRole(ur.UserID, ur.RoleID)
	}
	for _, rp := range ds.RolePermissions {
		m.GrantPermission(rp.RoleID, rp.PermissionID)
	}
	for _, rm := range ds.RoleMenus {
		m.GrantMenu(rm.RoleID, rm.MenuID)
	}
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func strPtr(v string) *string { return &v }
