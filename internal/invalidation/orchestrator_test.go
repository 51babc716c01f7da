package invalidation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/invalidation"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
	_ "github.com/odyssey-erp/odyssey-rbac/testing"
)

type env struct {
	store    *directory.MemoryStore
	resolver *rbac.Resolver
	codes    *permcache.Keyspace[[]string]
	profiles *permcache.Keyspace[rbac.Profile]
	orch     *invalidation.Orchestrator

	codeComputes    atomic.Int32
	profileComputes atomic.Int32
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := permcache.New(client, permcache.Config{Prefix: "it"})

	e := &env{store: directory.NewMemoryStore()}
	e.store.Load(directory.DefaultDataset("hash"))
	e.codes = permcache.NewKeyspace[[]string](cache, permcache.KeyspaceCodes)
	e.profiles = permcache.NewKeyspace[rbac.Profile](cache, permcache.KeyspaceProfile)
	e.resolver = rbac.NewResolver(e.store, rbac.WithCodeSource(e.cachedCodes))
	e.orch = invalidation.New(e.store, e.codes, e.profiles, nil, nil)
	return e
}

func (e *env) cachedCodes(ctx context.Context, userID int64) ([]string, error) {
	return e.codes.GetOrCompute(ctx, permcache.UserKey(userID), func(ctx context.Context) ([]string, error) {
		e.codeComputes.Add(1)
		return e.resolver.ResolvePermissionCodes(ctx, userID)
	})
}

func (e *env) cachedProfile(ctx context.Context, username string) (rbac.Profile, error) {
	return e.profiles.GetOrCompute(ctx, username, func(ctx context.Context) (rbac.Profile, error) {
		e.profileComputes.Add(1)
		return e.resolver.ResolveProfile(ctx, username)
	})
}

func permissionID(t *testing.T, store *directory.MemoryStore, code string) int64 {
	t.Helper()
	perms, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	for _, p := range perms {
		if p.Code == code {
			return p.ID
		}
	}
	t.Fatalf("permission %s not seeded", code)
	return 0
}

const (
	userJerry = int64(3) // OPS
	userTom   = int64(4) // GUEST
	roleOps   = int64(2)
	roleGuest = int64(3)
)

func TestRolePermissionChangeIsVisibleAfterEviction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	before, err := e.cachedCodes(ctx, userJerry)
	require.NoError(t, err)
	require.Contains(t, before, "sys:role:perm")

	keep := []int64{permissionID(t, e.store, "sys:user"), permissionID(t, e.store, "sys:user:list")}
	n, err := e.orch.OnRolePermissionsChanged(ctx, roleOps, keep)
	require.NoError(t, err)
	require.Equal(t, invalidation.RolePermissionsChanged, n.ChangeType)
	require.Equal(t, []int64{userJerry}, n.AffectedUserIDs)
	require.Equal(t, roleOps, *n.RoleID)
	require.True(t, n.RequiresReauth)
	require.Contains(t, n.Message, "1 user(s)")

	after, err := e.cachedCodes(ctx, userJerry)
	require.NoError(t, err)
	fresh, err := e.resolver.ResolvePermissionCodes(ctx, userJerry)
	require.NoError(t, err)
	require.ElementsMatch(t, fresh, after)
	require.Equal(t, []string{"sys:user", "sys:user:list"}, after)
	require.EqualValues(t, 2, e.codeComputes.Load())
}

func TestRolePermissionChangeEvictsProfilesOfMembersOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, u := range []string{"admin", "jerry", "tom"} {
		_, err := e.cachedProfile(ctx, u)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, e.profileComputes.Load())

	_, err := e.orch.OnRolePermissionsChanged(ctx, roleGuest, nil)
	require.NoError(t, err)

	tom, err := e.cachedProfile(ctx, "tom")
	require.NoError(t, err)
	require.Empty(t, tom.Permissions)
	_, err = e.cachedProfile(ctx, "jerry")
	require.NoError(t, err)
	_, err = e.cachedProfile(ctx, "admin")
	require.NoError(t, err)
	require.EqualValues(t, 4, e.profileComputes.Load(), "only tom recomputes")
}

func TestAffectedUsersAreReadBeforeMutationAndEvictedAfter(t *testing.T) {
	e := newEnv(t)
	events := &eventLog{}
	store := &recordingStore{MemoryStore: e.store, log: events}
	orch := invalidation.New(store,
		&spyEvictor{name: permcache.KeyspaceCodes, log: events},
		&spyEvictor{name: permcache.KeyspaceProfile, log: events},
		nil, nil)

	e.store.BeforeReplace = func(op string) { events.add("replace " + op) }
	_, err := orch.OnRolePermissionsChanged(context.Background(), roleOps, nil)
	require.NoError(t, err)

	require.Equal(t, []string{
		"members of 2",
		"lookup user 3",
		"replace ReplaceRolePermissions",
		"evict codes/3",
		"evict profile/jerry",
	}, events.all())
}

func TestUnknownRoleIsNotFoundAndNothingChanges(t *testing.T) {
	e := newEnv(t)

	_, err := e.orch.OnRolePermissionsChanged(context.Background(), 999, []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Zero(t, e.store.Calls("ReplaceRolePermissions"))

	_, err = e.orch.OnRoleMenusChanged(context.Background(), 999, []int64{1})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Zero(t, e.store.Calls("ReplaceRoleMenus"))
}

func TestStoreFailureDuringReplaceSkipsEviction(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.cachedCodes(ctx, userJerry)
	require.NoError(t, err)

	boom := errors.New("tx aborted")
	e.store.InjectError("ReplaceRolePermissions", boom)
	_, err = e.orch.OnRolePermissionsChanged(ctx, roleOps, nil)
	require.ErrorIs(t, err, boom)

	_, err = e.cachedCodes(ctx, userJerry)
	require.NoError(t, err)
	require.EqualValues(t, 1, e.codeComputes.Load())
}

func TestPermissionRecordChangeEvictsEveryProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	users := []string{"admin", "manager", "jerry", "tom"}
	for _, u := range users {
		_, err := e.cachedProfile(ctx, u)
		require.NoError(t, err)
	}
	profilesBefore := e.profileComputes.Load()
	codesBefore := e.codeComputes.Load()

	id := permissionID(t, e.store, "sys:user:list")
	perm, err := e.store.FindPermissionByID(ctx, id)
	require.NoError(t, err)
	perm.Name = "List every user"
	_, err = e.store.UpdatePermission(ctx, perm)
	require.NoError(t, err)
	n := e.orch.OnPermissionRecordChanged(ctx, id)
	require.Equal(t, invalidation.PermissionUpdated, n.ChangeType)
	require.Equal(t, id, *n.PermissionID)
	require.ElementsMatch(t, []int64{1, 2, 3, 4}, n.AffectedUserIDs)

	for _, u := range users {
		_, err := e.cachedProfile(ctx, u)
		require.NoError(t, err)
	}
	require.Equal(t, profilesBefore+int32(len(users)), e.profileComputes.Load())
	require.Equal(t, codesBefore+int32(len(users)), e.codeComputes.Load())
}

func TestMenuRecordChangeEvictsProfilesNotCodes(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.cachedProfile(ctx, "tom")
	require.NoError(t, err)

	n := e.orch.OnMenuRecordChanged(ctx, 2)
	require.Equal(t, invalidation.MenuUpdated, n.ChangeType)

	_, err = e.cachedProfile(ctx, "tom")
	require.NoError(t, err)
	require.EqualValues(t, 2, e.profileComputes.Load())
	require.EqualValues(t, 1, e.codeComputes.Load())
}

func TestUserRolesChangeEvictsThatUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	before, err := e.cachedCodes(ctx, userTom)
	require.NoError(t, err)
	require.NotContains(t, before, "sys:role:perm")

	n, err := e.orch.OnUserRolesChanged(ctx, userTom, []int64{roleOps})
	require.NoError(t, err)
	require.Equal(t, []int64{userTom}, n.AffectedUserIDs)

	after, err := e.cachedCodes(ctx, userTom)
	require.NoError(t, err)
	require.Contains(t, after, "sys:role:perm")

	profile, err := e.cachedProfile(ctx, "tom")
	require.NoError(t, err)
	require.Equal(t, []int64{roleOps}, profile.RoleIDs)
}

func TestUserRecordChangeEvictsCodesAndProfile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.cachedProfile(ctx, "jerry")
	require.NoError(t, err)

	user, err := e.store.FindUserByID(ctx, userJerry)
	require.NoError(t, err)
	user.Nickname = "J."
	_, err = e.store.UpdateUser(ctx, user)
	require.NoError(t, err)
	e.orch.OnUserRecordChanged(ctx, userJerry)

	profile, err := e.cachedProfile(ctx, "jerry")
	require.NoError(t, err)
	require.Equal(t, "J.", profile.Nickname)
	require.EqualValues(t, 2, e.codeComputes.Load())
}

func TestEvictionFailureIsQueuedAndDoesNotFailMutation(t *testing.T) {
	e := newEnv(t)
	down := errors.New("redis down")
	queue := &spyQueue{}
	orch := invalidation.New(e.store,
		&spyEvictor{name: permcache.KeyspaceCodes, log: &eventLog{}, fail: down},
		&spyEvictor{name: permcache.KeyspaceProfile, log: &eventLog{}, fail: down},
		queue, nil)

	n, err := orch.OnRolePermissionsChanged(context.Background(), roleOps, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{userJerry}, n.AffectedUserIDs)
	links, err := e.store.FindRolePermissions(context.Background(), []int64{roleOps})
	require.NoError(t, err)
	require.Empty(t, links)

	orch.OnPermissionRecordChanged(context.Background(), 1)

	require.Equal(t, []queued{
		{keyspace: "codes", keys: []string{"3"}},
		{keyspace: "profile", keys: []string{"jerry"}},
		{keyspace: "profile", all: true},
		{keyspace: "codes", all: true},
	}, queue.items)
}

func TestUnresolvableUsernameFallsBackToFullProfileEviction(t *testing.T) {
	e := newEnv(t)
	events := &eventLog{}
	orch := invalidation.New(e.store,
		&spyEvictor{name: permcache.KeyspaceCodes, log: events},
		&spyEvictor{name: permcache.KeyspaceProfile, log: events},
		nil, nil)

	e.store.InjectError("FindUserByID", errors.New("lookup failed"))
	orch.OnUserRecordChanged(context.Background(), userTom)

	require.Equal(t, []string{"evict codes/4", "evict-all profile"}, events.all())
}

type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ev)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// recordingStore logs the reads the orchestrator makes ahead of a mutation.
type recordingStore struct {
	*directory.MemoryStore
	log *eventLog
}

func (s *recordingStore) FindUsersByRole(ctx context.Context, roleID int64) ([]int64, error) {
	s.log.add(fmt.Sprintf("members of %d", roleID))
	return s.MemoryStore.FindUsersByRole(ctx, roleID)
}

func (s *recordingStore) FindUserByID(ctx context.Context, id int64) (directory.User, error) {
	s.log.add(fmt.Sprintf("lookup user %d", id))
	return s.MemoryStore.FindUserByID(ctx, id)
}

type spyEvictor struct {
	name string
	fail error
	log  *eventLog
}

func (s *spyEvictor) Name() string { return s.name }

func (s *spyEvictor) Evict(_ context.Context, key string) error {
	s.log.add("evict " + s.name + "/" + key)
	return s.fail
}

func (s *spyEvictor) EvictAll(context.Context) error {
	s.log.add("evict-all " + s.name)
	return s.fail
}

type queued struct {
	keyspace string
	keys     []string
	all      bool
}

type spyQueue struct {
	items []queued
}

func (q *spyQueue) EnqueueEviction(_ context.Context, keyspace string, keys []string, all bool) error {
	q.items = append(q.items, queued{keyspace: keyspace, keys: keys, all: all})
	return nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []shared.AuditLog
	fail    bool
}

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, log)
	if a.fail {
		return errors.New("audit store down")
	}
	return nil
}

func TestNotificationsAreAudited(t *testing.T) {
	e := newEnv(t)
	auditor := &recordingAuditor{}
	e.orch.WithAuditor(auditor)
	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{Username: "admin"})

	_, err := e.orch.OnRoleMenusChanged(ctx, roleGuest, []int64{1})
	require.NoError(t, err)
	e.orch.OnMenuRecordChanged(ctx, 2)

	require.Len(t, auditor.entries, 2)
	require.Equal(t, shared.AuditLog{
		Actor:    "admin",
		Action:   "ROLE_MENU_CHANGED",
		Entity:   "role",
		EntityID: "3",
		Meta:     map[string]any{"affectedUserIds": []int64{userTom}},
	}, auditor.entries[0])
	require.Equal(t, "menu", auditor.entries[1].Entity)
	require.Equal(t, "2", auditor.entries[1].EntityID)

	_, err = e.orch.OnRoleMenusChanged(context.Background(), roleGuest, []int64{99})
	require.ErrorIs(t, err, shared.ErrNotFound, "a failed mutation is not audited")
	require.Len(t, auditor.entries, 2)
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	e := newEnv(t)
	e.orch.WithAuditor(&recordingAuditor{fail: true})

	n, err := e.orch.OnUserRolesChanged(context.Background(), userTom, []int64{roleOps})
	require.NoError(t, err)
	require.Equal(t, invalidation.UserRolesChanged, n.ChangeType)

	roles, err := e.store.FindRolesForUser(context.Background(), userTom)
	require.NoError(t, err)
	require.Equal(t, []int64{roleOps}, roles)
}
