package policy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/moodysoft/cardstash/internal/models"
)

// fakeSource is an in-memory membership source for predicate tests.
type fakeSource struct {
	roles  map[uuid.UUID]map[uuid.UUID]models.Role // principal -> org -> role
	shared map[[2]uuid.UUID]bool
}

func (f *fakeSource) LiveRolesForPrincipal(_ context.Context, principalID uuid.UUID) (map[uuid.UUID]models.Role, error) {
	return f.roles[principalID], nil
}

func (f *fakeSource) SharedOrganization(_ context.Context, a, b uuid.UUID) (bool, error) {
	return f.shared[[2]uuid.UUID{a, b}] || f.shared[[2]uuid.UUID{b, a}], nil
}

func newTestActor(t *testing.T, orgID uuid.UUID, role models.Role) *Actor {
	t.Helper()
	principalID := uuid.Must(uuid.NewV7())
	roles := map[uuid.UUID]models.Role{}
	if role != "" {
		roles[orgID] = role
	}
	return NewActor(principalID, "actor@example.com", roles)
}

func TestDefaultDeny(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&fakeSource{})
	orgID := uuid.Must(uuid.NewV7())
	actor := newTestActor(t, orgID, models.RoleOwner)

	t.Run("unknown table", func(t *testing.T) {
		ok, err := engine.Can(ctx, actor, OpSelect, Table("widgets"), &models.Organization{OrgID: orgID}, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unregistered op on known table", func(t *testing.T) {
		// Direct organization inserts are reserved for CreateOrganization.
		ok, err := engine.Can(ctx, actor, OpInsert, TableOrganizations, nil, &models.Organization{OrgID: orgID})
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("even owners cannot write memberships directly", func(t *testing.T) {
		m := &models.Membership{OrgID: orgID, PrincipalID: actor.PrincipalID, Role: models.RoleAdmin}
		for _, op := range []Op{OpInsert, OpUpdate, OpDelete} {
			ok, err := engine.Can(ctx, actor, op, TableMemberships, m, m)
			require.NoError(t, err)
			require.False(t, ok, "op %s must be denied", op)
		}
	})

	t.Run("sales are never written directly", func(t *testing.T) {
		sale := &models.Sale{OrgID: orgID, ItemID: uuid.Must(uuid.NewV7())}
		for _, op := range []Op{OpInsert, OpUpdate, OpDelete} {
			ok, err := engine.Can(ctx, actor, op, TableSales, sale, sale)
			require.NoError(t, err)
			require.False(t, ok, "op %s must be denied", op)
		}
	})

	t.Run("audit log is append only and not even appendable here", func(t *testing.T) {
		entry := &models.AuditEntry{OrgID: orgID}
		for _, op := range []Op{OpInsert, OpUpdate, OpDelete} {
			ok, err := engine.Can(ctx, actor, op, TableAuditEntries, entry, entry)
			require.NoError(t, err)
			require.False(t, ok, "op %s must be denied", op)
		}
	})
}

func TestOrganizationVisibility(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&fakeSource{})
	orgID := uuid.Must(uuid.NewV7())

	member := newTestActor(t, orgID, models.RoleMember)
	stranger := newTestActor(t, uuid.Must(uuid.NewV7()), models.RoleOwner)

	org := &models.Organization{OrgID: orgID, Name: "Moody Cards", Slug: "moody-cards"}

	ok, err := engine.Can(ctx, member, OpSelect, TableOrganizations, org, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.Can(ctx, stranger, OpSelect, TableOrganizations, org, nil)
	require.NoError(t, err)
	require.False(t, ok, "membership in another org grants nothing here")

	t.Run("soft-deleted org is invisible even to members", func(t *testing.T) {
		now := time.Now()
		deleted := &models.Organization{OrgID: orgID, Slug: "moody-cards", DeletedAt: &now}
		ok, err := engine.Can(ctx, member, OpSelect, TableOrganizations, deleted, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestOrganizationUpdate(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&fakeSource{})
	orgID := uuid.Must(uuid.NewV7())

	admin := newTestActor(t, orgID, models.RoleAdmin)
	member := newTestActor(t, orgID, models.RoleMember)

	org := &models.Organization{OrgID: orgID, Name: "Moody Cards", Slug: "moody-cards"}

	t.Run("admin may rename", func(t *testing.T) {
		next := &models.Organization{OrgID: orgID, Name: "Moody Cards & Co", Slug: "moody-cards"}
		ok, err := engine.Can(ctx, admin, OpUpdate, TableOrganizations, org, next)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("member may not", func(t *testing.T) {
		next := &models.Organization{OrgID: orgID, Name: "x", Slug: "moody-cards"}
		ok, err := engine.Can(ctx, member, OpUpdate, TableOrganizations, org, next)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("slug is immutable", func(t *testing.T) {
		next := &models.Organization{OrgID: orgID, Name: "Moody Cards", Slug: "grumpy-cards"}
		ok, err := engine.Can(ctx, admin, OpUpdate, TableOrganizations, org, next)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("deletion marker cannot be set directly", func(t *testing.T) {
		now := time.Now()
		next := &models.Organization{OrgID: orgID, Name: "Moody Cards", Slug: "moody-cards", DeletedAt: &now}
		ok, err := engine.Can(ctx, admin, OpUpdate, TableOrganizations, org, next)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestItemPredicates(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&fakeSource{})
	orgID := uuid.Must(uuid.NewV7())
	member := newTestActor(t, orgID, models.RoleMember)
	admin := newTestActor(t, orgID, models.RoleAdmin)

	item := &models.Item{
		ItemID: uuid.Must(uuid.NewV7()),
		OrgID:  orgID,
		Name:   "Charizard Holo",
		Status: models.ItemStatusAvailable,
	}

	t.Run("member may insert available item", func(t *testing.T) {
		ok, err := engine.Can(ctx, member, OpInsert, TableItems, nil, item)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("cannot insert sold item", func(t *testing.T) {
		sold := &models.Item{OrgID: orgID, Status: models.ItemStatusSold}
		ok, err := engine.Can(ctx, member, OpInsert, TableItems, nil, sold)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("reserve transition is a plain update", func(t *testing.T) {
		next := *item
		next.Status = models.ItemStatusReserved
		ok, err := engine.Can(ctx, member, OpUpdate, TableItems, item, &next)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("sold transition is denied outside MarkItemSold", func(t *testing.T) {
		next := *item
		next.Status = models.ItemStatusSold
		ok, err := engine.Can(ctx, member, OpUpdate, TableItems, item, &next)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("sold item cannot be un-sold", func(t *testing.T) {
		soldItem := *item
		soldItem.Status = models.ItemStatusSold
		next := soldItem
		next.Status = models.ItemStatusAvailable
		ok, err := engine.Can(ctx, member, OpUpdate, TableItems, &soldItem, &next)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("item cannot change tenant", func(t *testing.T) {
		next := *item
		next.OrgID = uuid.Must(uuid.NewV7())
		ok, err := engine.Can(ctx, admin, OpUpdate, TableItems, item, &next)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete requires admin", func(t *testing.T) {
		ok, err := engine.Can(ctx, member, OpDelete, TableItems, item, nil)
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = engine.Can(ctx, admin, OpDelete, TableItems, item, nil)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("soft-deleted item is invisible", func(t *testing.T) {
		now := time.Now()
		gone := *item
		gone.DeletedAt = &now
		ok, err := engine.Can(ctx, member, OpSelect, TableItems, &gone, nil)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestInviteAndAuditVisibility(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&fakeSource{})
	orgID := uuid.Must(uuid.NewV7())
	member := newTestActor(t, orgID, models.RoleMember)
	admin := newTestActor(t, orgID, models.RoleAdmin)

	invite := &models.Invite{OrgID: orgID, Email: "new@example.com", Role: models.RoleMember}
	entry := &models.AuditEntry{OrgID: orgID, TableName: "items"}

	ok, err := engine.Can(ctx, member, OpSelect, TableInvites, invite, nil)
	require.NoError(t, err)
	require.False(t, ok, "invite tokens are hidden from plain members")

	ok, err = engine.Can(ctx, admin, OpSelect, TableInvites, invite, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = engine.Can(ctx, member, OpSelect, TableAuditEntries, entry, nil)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = engine.Can(ctx, admin, OpSelect, TableAuditEntries, entry, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProfileVisibility(t *testing.T) {
	ctx := context.Background()
	self := uuid.Must(uuid.NewV7())
	colleague := uuid.Must(uuid.NewV7())
	stranger := uuid.Must(uuid.NewV7())

	source := &fakeSource{
		shared: map[[2]uuid.UUID]bool{
			{self, colleague}: true,
		},
	}
	engine := NewEngine(source)
	actor := NewActor(self, "self@example.com", nil)

	ok, err := engine.Can(ctx, actor, OpSelect, TableProfiles, &models.Principal{PrincipalID: self}, nil)
	require.NoError(t, err)
	require.True(t, ok, "own profile is always visible")

	ok, err = engine.Can(ctx, actor, OpSelect, TableProfiles, &models.Principal{PrincipalID: colleague}, nil)
	require.NoError(t, err)
	require.True(t, ok, "profiles of colleagues are visible")

	ok, err = engine.Can(ctx, actor, OpSelect, TableProfiles, &models.Principal{PrincipalID: stranger}, nil)
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("own display name is editable, identity fields are not", func(t *testing.T) {
		p := &models.Principal{PrincipalID: self, Subject: "sub-1", Email: "self@example.com", Name: "Self"}

		renamed := *p
		renamed.Name = "Selfie"
		ok, err := engine.Can(ctx, actor, OpUpdate, TableProfiles, p, &renamed)
		require.NoError(t, err)
		require.True(t, ok)

		rewired := *p
		rewired.Email = "other@example.com"
		ok, err = engine.Can(ctx, actor, OpUpdate, TableProfiles, p, &rewired)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestFilterRows(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(&fakeSource{})
	orgID := uuid.Must(uuid.NewV7())
	otherOrg := uuid.Must(uuid.NewV7())
	member := newTestActor(t, orgID, models.RoleMember)

	now := time.Now()
	items := []*models.Item{
		{ItemID: uuid.Must(uuid.NewV7()), OrgID: orgID, Status: models.ItemStatusAvailable},
		{ItemID: uuid.Must(uuid.NewV7()), OrgID: otherOrg, Status: models.ItemStatusAvailable},
		{ItemID: uuid.Must(uuid.NewV7()), OrgID: orgID, Status: models.ItemStatusSold},
		{ItemID: uuid.Must(uuid.NewV7()), OrgID: orgID, Status: models.ItemStatusAvailable, DeletedAt: &now},
	}

	visible, err := policyFilter(ctx, engine, member, items)
	require.NoError(t, err)
	require.Len(t, visible, 2, "foreign and soft-deleted rows are silently dropped")
	for _, item := range visible {
		require.Equal(t, orgID, item.OrgID)
		require.Nil(t, item.DeletedAt)
	}
}

func policyFilter(ctx context.Context, e *Engine, actor *Actor, items []*models.Item) ([]*models.Item, error) {
	return FilterRows(ctx, e, actor, TableItems, items)
}
