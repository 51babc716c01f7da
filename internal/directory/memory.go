package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// MemoryStore is an in-memory Store used by tests and local demos.
type MemoryStore struct {
	mu sync.RWMutex

	nextID      int64
	users       map[int64]User
	roles       map[int64]Role
	permissions map[int64]Permission
	menus       map[int64]Menu

	userRoles       map[int64][]int64
	rolePermissions map[int64][]int64
	roleMenus       map[int64][]int64

	calls  map[string]int
	errors map[string]error

	// BeforeReplace runs inside Replace* before the new set becomes visible. It is
	// called with the store lock held and must not call back into the store.
	BeforeReplace func(op string)
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:           make(map[int64]User),
		roles:           make(map[int64]Role),
		permissions:     make(map[int64]Permission),
		menus:           make(map[int64]Menu),
		userRoles:       make(map[int64][]int64),
		rolePermissions: make(map[int64][]int64),
		roleMenus:       make(map[int64][]int64),
		calls:           make(map[string]int),
		errors:          make(map[string]error),
	}
}

var _ Store = (*MemoryStore)(nil)

// InjectError makes the named operation fail with err until cleared with a nil error.
func (m *MemoryStore) InjectError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errors, op)
		return
	}
	m.errors[op] = err
}

// Calls returns how many times the named operation ran.
func (m *MemoryStore) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *MemoryStore) track(op string) error {
	m.calls[op]++
	return m.errors[op]
}

func (m *MemoryStore) allocID(id int64) int64 {
	if id == 0 {
		m.nextID++
		return m.nextID
	}
	if id > m.nextID {
		m.nextID = id
	}
	return id
}

// AddUser seeds a user. A zero ID is assigned automatically.
func (m *MemoryStore) AddUser(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.allocID(u.ID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
		u.UpdatedAt = u.CreatedAt
	}
	m.users[u.ID] = u
	return u
}

// AddRole seeds a role.
func (m *MemoryStore) AddRole(r Role) Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.allocID(r.ID)
	m.roles[r.ID] = r
	return r
}

// AddPermission seeds a permission.
func (m *MemoryStore) AddPermission(p Permission) Permission {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.allocID(p.ID)
	m.permissions[p.ID] = p
	return p
}

// AddMenu seeds a menu.
func (m *MemoryStore) AddMenu(menu Menu) Menu {
	m.mu.Lock()
	defer m.mu.Unlock()
	menu.ID = m.allocID(menu.ID)
	m.menus[menu.ID] = menu
	return menu
}

// AssignRole links a user to roles.
func (m *MemoryStore) AssignRole(userID int64, roleIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRoles[userID] = UniqueIDs(append(m.userRoles[userID], roleIDs...))
}

// GrantPermission links a role to permissions.
func (m *MemoryStore) GrantPermission(roleID int64, permissionIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rolePermissions[roleID] = UniqueIDs(append(m.rolePermissions[roleID], permissionIDs...))
}

// GrantMenu links a role to menus.
func (m *MemoryStore) GrantMenu(roleID int64, menuIDs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleMenus[roleID] = UniqueIDs(append(m.roleMenus[roleID], menuIDs...))
}

func (m *MemoryStore) FindUserByID(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindUserByID"); err != nil {
		return User{}, err
	}
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindUserByUsername"); err != nil {
		return User{}, err
	}
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *MemoryStore) FindRolesForUser(_ context.Context, userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindRolesForUser"); err != nil {
		return nil, err
	}
	return append([]int64(nil), m.userRoles[userID]...), nil
}

func (m *MemoryStore) FindUsersByRole(_ context.Context, roleID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindUsersByRole"); err != nil {
		return nil, err
	}
	var out []int64
	for userID, roleIDs := range m.userRoles {
		if containsID(roleIDs, roleID) {
			out = append(out, userID)
		}
	}
	sortIDs(out)
	return out, nil
}

func (m *MemoryStore) ExistsRole(_ context.Context, roleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ExistsRole"); err != nil {
		return false, err
	}
	_, ok := m.roles[roleID]
	return ok, nil
}

func (m *MemoryStore) UpdateUser(_ context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("UpdateUser"); err != nil {
		return User{}, err
	}
	current, ok := m.users[user.ID]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	current.Nickname = user.Nickname
	current.Email = user.Email
	current.Status = user.Status
	current.UpdatedAt = time.Now()
	m.users[user.ID] = current
	return current, nil
}

func (m *MemoryStore) ReplaceUserRoles(_ context.Context, userID int64, roleIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ReplaceUserRoles"); err != nil {
		return err
	}
	if _, ok := m.users[userID]; !ok {
		return shared.ErrNotFound
	}
	for _, id := range roleIDs {
		if _, ok := m.roles[id]; !ok {
			return fmt.Errorf("directory: role %d: %w", id, shared.ErrNotFound)
		}
	}
	if m.BeforeReplace != nil {
		m.BeforeReplace("ReplaceUserRoles")
	}
	m.userRoles[userID] = UniqueIDs(roleIDs)
	return nil
}

func (m *MemoryStore) ListPermissions(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ListPermissions"); err != nil {
		return nil, err
	}
	out := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) FindPermissionByID(_ context.Context, id int64) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindPermissionByID"); err != nil {
		return Permission{}, err
	}
	p, ok := m.permissions[id]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) FindPermissionsByIDs(_ context.Context, ids []int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindPermissionsByIDs"); err != nil {
		return nil, err
	}
	var out []Permission
	for _, id := range UniqueIDs(ids) {
		if p, ok := m.permissions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MemoryStore) FindPermissionsByParent(_ context.Context, parentID int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindPermissionsByParent"); err != nil {
		return nil, err
	}
	var out []Permission
	for _, p := range m.permissions {
		if p.ParentID != nil && *p.ParentID == parentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ExistsPermissionWithCode(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ExistsPermissionWithCode"); err != nil {
		return false, err
	}
	return m.codeTaken(code, 0), nil
}

func (m *MemoryStore) codeTaken(code string, except int64) bool {
	for _, p := range m.permissions {
		if p.Code == code && p.ID != except {
			return true
		}
	}
	return false
}

func (m *MemoryStore) CreatePermission(_ context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("CreatePermission"); err != nil {
		return Permission{}, err
	}
	if m.codeTaken(perm.Code, 0) {
		return Permission{}, fmt.Errorf("directory: permission code %q: %w", perm.Code, shared.ErrConflict)
	}
	perm.ID = m.allocID(0)
	perm.CreatedAt = time.Now()
	perm.UpdatedAt = perm.CreatedAt
	m.permissions[perm.ID] = perm
	return perm, nil
}

func (m *MemoryStore) UpdatePermission(_ context.Context, perm Permission) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("UpdatePermission"); err != nil {
		return Permission{}, err
	}
	current, ok := m.permissions[perm.ID]
	if !ok {
		return Permission{}, shared.ErrNotFound
	}
	if m.codeTaken(perm.Code, perm.ID) {
		return Permission{}, fmt.Errorf("directory: permission code %q: %w", perm.Code, shared.ErrConflict)
	}
	perm.CreatedAt = current.CreatedAt
	perm.UpdatedAt = time.Now()
	m.permissions[perm.ID] = perm
	return perm, nil
}

func (m *MemoryStore) DeletePermission(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("DeletePermission"); err != nil {
		return err
	}
	if _, ok := m.permissions[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.permissions, id)
	return nil
}

func (m *MemoryStore) FindRolePermissions(_ context.Context, roleIDs []int64) ([]RolePermission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindRolePermissions"); err != nil {
		return nil, err
	}
	var out []RolePermission
	for _, roleID := range UniqueIDs(roleIDs) {
		for _, permID := range m.rolePermissions[roleID] {
			out = append(out, RolePermission{RoleID: roleID, PermissionID: permID})
		}
	}
	return out, nil
}

func (m *MemoryStore) FindRolesByPermission(_ context.Context, permissionID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindRolesByPermission"); err != nil {
		return nil, err
	}
	var out []int64
	for roleID, permIDs := range m.rolePermissions {
		if containsID(permIDs, permissionID) {
			out = append(out, roleID)
		}
	}
	sortIDs(out)
	return out, nil
}

func (m *MemoryStore) ReplaceRolePermissions(_ context.Context, roleID int64, permissionIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ReplaceRolePermissions"); err != nil {
		return err
	}
	if _, ok := m.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	for _, id := range permissionIDs {
		if _, ok := m.permissions[id]; !ok {
			return fmt.Errorf("directory: permission %d: %w", id, shared.ErrNotFound)
		}
	}
	if m.BeforeReplace != nil {
		m.BeforeReplace("ReplaceRolePermissions")
	}
	m.rolePermissions[roleID] = UniqueIDs(permissionIDs)
	return nil
}

func (m *MemoryStore) ListMenus(_ context.Context) ([]Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ListMenus"); err != nil {
		return nil, err
	}
	out := make([]Menu, 0, len(m.menus))
	for _, menu := range m.menus {
		out = append(out, menu)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) FindMenuByID(_ context.Context, id int64) (Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindMenuByID"); err != nil {
		return Menu{}, err
	}
	menu, ok := m.menus[id]
	if !ok {
		return Menu{}, shared.ErrNotFound
	}
	return menu, nil
}

func (m *MemoryStore) FindMenusByIDs(_ context.Context, ids []int64) ([]Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindMenusByIDs"); err != nil {
		return nil, err
	}
	var out []Menu
	for _, id := range UniqueIDs(ids) {
		if menu, ok := m.menus[id]; ok {
			out = append(out, menu)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpdateMenu(_ context.Context, menu Menu) (Menu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("UpdateMenu"); err != nil {
		return Menu{}, err
	}
	current, ok := m.menus[menu.ID]
	if !ok {
		return Menu{}, shared.ErrNotFound
	}
	menu.CreatedAt = current.CreatedAt
	menu.UpdatedAt = time.Now()
	m.menus[menu.ID] = menu
	return menu, nil
}

func (m *MemoryStore) FindRoleMenus(_ context.Context, roleIDs []int64) ([]RoleMenu, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("FindRoleMenus"); err != nil {
		return nil, err
	}
	var out []RoleMenu
	for _, roleID := range UniqueIDs(roleIDs) {
		for _, menuID := range m.roleMenus[roleID] {
			out = append(out, RoleMenu{RoleID: roleID, MenuID: menuID})
		}
	}
	return out, nil
}

func (m *MemoryStore) ReplaceRoleMenus(_ context.Context, roleID int64, menuIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.track("ReplaceRoleMenus"); err != nil {
		return err
	}
	if _, ok := m.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	for _, id := range menuIDs {
		if _, ok := m.menus[id]; !ok {
			return fmt.Errorf("directory: menu %d: %w", id, shared.ErrNotFound)
		}
	}
	if m.BeforeReplace != nil {
		m.BeforeReplace("ReplaceRoleMenus")
	}
	m.roleMenus[roleID] = UniqueIDs(menuIDs)
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
