package query

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
	"github.com/moodysoft/cardstash/internal/store"
	"github.com/moodysoft/cardstash/internal/store/memory"
)

type fixture struct {
	queries *Queries
	engine  *policy.Engine
	mem     *memory.Store

	org        *models.Organization
	deletedOrg *models.Organization

	owner    *models.Principal
	member   *models.Principal
	outsider *models.Principal

	item        *models.Item
	deletedItem *models.Item
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := memory.NewStore()
	engine := policy.NewEngine(mem)

	f := &fixture{
		mem:    mem,
		engine: engine,
		queries: New(engine, Stores{
			Organizations: mem,
			Principals:    mem,
			Memberships:   mem,
			Items:         mem,
			Sales:         mem,
			Invites:       mem,
			Images:        mem,
			Audits:        mem,
		}),
	}

	now := time.Now()
	deleted := now.Add(-time.Hour)

	f.org = &models.Organization{OrgID: uuid.New(), Name: "Moody Cards", Slug: "moody-cards", CreatedAt: now}
	f.deletedOrg = &models.Organization{OrgID: uuid.New(), Name: "Ghost Shop", Slug: "ghost-shop", CreatedAt: now, DeletedAt: &deleted}
	mem.AddOrganization(f.org)
	mem.AddOrganization(f.deletedOrg)

	f.owner = &models.Principal{PrincipalID: uuid.New(), Subject: "sub-owner", Email: "owner@moodycards.example", Name: "Owner"}
	f.member = &models.Principal{PrincipalID: uuid.New(), Subject: "sub-member", Email: "member@moodycards.example", Name: "Member"}
	f.outsider = &models.Principal{PrincipalID: uuid.New(), Subject: "sub-outsider", Email: "outsider@example.com", Name: "Outsider"}
	mem.AddPrincipal(f.owner)
	mem.AddPrincipal(f.member)
	mem.AddPrincipal(f.outsider)

	mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: f.org.OrgID, PrincipalID: f.owner.PrincipalID, Role: models.RoleOwner})
	mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: f.org.OrgID, PrincipalID: f.member.PrincipalID, Role: models.RoleMember})
	// Membership in the deleted org must grant nothing.
	mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: f.deletedOrg.OrgID, PrincipalID: f.owner.PrincipalID, Role: models.RoleOwner})

	f.item = &models.Item{ItemID: uuid.New(), OrgID: f.org.OrgID, Name: "Charizard Holo", Status: models.ItemStatusAvailable, Price: decimal.RequireFromString("1200.00"), CreatedAt: now}
	f.deletedItem = &models.Item{ItemID: uuid.New(), OrgID: f.org.OrgID, Name: "Trashed Card", Status: models.ItemStatusAvailable, Price: decimal.Zero, CreatedAt: now, DeletedAt: &deleted}
	mem.AddItem(f.item)
	mem.AddItem(f.deletedItem)

	return f
}

func (f *fixture) actor(t *testing.T, p *models.Principal) *policy.Actor {
	t.Helper()

	actor, err := f.engine.ActorFor(context.Background(), p.PrincipalID, p.Email)
	require.NoError(t, err)
	return actor
}

func TestOrganizationsFor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orgs, err := f.queries.OrganizationsFor(ctx, f.actor(t, f.owner))
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	require.Equal(t, f.org.OrgID, orgs[0].Organization.OrgID)
	require.Equal(t, models.RoleOwner, orgs[0].Role)

	orgs, err = f.queries.OrganizationsFor(ctx, f.actor(t, f.outsider))
	require.NoError(t, err)
	require.Empty(t, orgs)
}

func TestGetOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.queries.GetOrganization(ctx, f.actor(t, f.member), f.org.OrgID)
	require.NoError(t, err)
	require.Equal(t, "moody-cards", org.Slug)

	// Foreign and deleted organizations read as absent.
	_, err = f.queries.GetOrganization(ctx, f.actor(t, f.outsider), f.org.OrgID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = f.queries.GetOrganization(ctx, f.actor(t, f.owner), f.deletedOrg.OrgID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = f.queries.GetOrganization(ctx, f.actor(t, f.owner), uuid.New())
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetOrganizationBySlug(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	org, err := f.queries.GetOrganizationBySlug(ctx, f.actor(t, f.member), "moody-cards")
	require.NoError(t, err)
	require.Equal(t, f.org.OrgID, org.OrgID)

	_, err = f.queries.GetOrganizationBySlug(ctx, f.actor(t, f.outsider), "moody-cards")
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = f.queries.GetOrganizationBySlug(ctx, f.actor(t, f.owner), "ghost-shop")
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = f.queries.GetOrganizationBySlug(ctx, f.actor(t, f.owner), "no-such-shop")
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	me, err := f.queries.Me(ctx, f.actor(t, f.outsider), "sub-outsider")
	require.NoError(t, err)
	require.Equal(t, f.outsider.PrincipalID, me.PrincipalID)
	require.Equal(t, "Outsider", me.Name)

	_, err = f.queries.Me(ctx, f.actor(t, f.owner), "sub-nobody")
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.queries.GetMembership(ctx, f.actor(t, f.member), f.org.OrgID, f.owner.PrincipalID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, m.Role)

	_, err = f.queries.GetMembership(ctx, f.actor(t, f.member), f.org.OrgID, f.outsider.PrincipalID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = f.queries.GetMembership(ctx, f.actor(t, f.outsider), f.org.OrgID, f.owner.PrincipalID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestColleagues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	colleagues, err := f.queries.Colleagues(ctx, f.actor(t, f.owner))
	require.NoError(t, err)
	require.Len(t, colleagues, 1)
	require.Equal(t, f.member.PrincipalID, colleagues[0].PrincipalID)

	colleagues, err = f.queries.Colleagues(ctx, f.actor(t, f.outsider))
	require.NoError(t, err)
	require.Empty(t, colleagues)
}

func TestListMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	memberships, err := f.queries.ListMemberships(ctx, f.actor(t, f.member), f.org.OrgID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)

	_, err = f.queries.ListMemberships(ctx, f.actor(t, f.outsider), f.org.OrgID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestListItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.queries.ListItems(ctx, f.actor(t, f.member), f.org.OrgID, store.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, f.item.ItemID, items[0].ItemID)

	sold := models.ItemStatusSold
	items, err = f.queries.ListItems(ctx, f.actor(t, f.member), f.org.OrgID, store.ItemFilter{Status: &sold})
	require.NoError(t, err)
	require.Empty(t, items)

	_, err = f.queries.ListItems(ctx, f.actor(t, f.outsider), f.org.OrgID, store.ItemFilter{})
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.queries.GetItem(ctx, f.actor(t, f.member), f.item.ItemID)
	require.NoError(t, err)
	require.Equal(t, "Charizard Holo", item.Name)

	_, err = f.queries.GetItem(ctx, f.actor(t, f.outsider), f.item.ItemID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	// Soft-deleted items are invisible even to members.
	_, err = f.queries.GetItem(ctx, f.actor(t, f.member), f.deletedItem.ItemID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestListItemImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mem.AddImage(&models.ItemImage{ImageID: uuid.New(), OrgID: f.org.OrgID, ItemID: f.item.ItemID, Path: "images/front.jpg"})

	images, err := f.queries.ListItemImages(ctx, f.actor(t, f.member), f.item.ItemID)
	require.NoError(t, err)
	require.Len(t, images, 1)

	_, err = f.queries.ListItemImages(ctx, f.actor(t, f.outsider), f.item.ItemID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetItemImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	img := &models.ItemImage{ImageID: uuid.New(), OrgID: f.org.OrgID, ItemID: f.item.ItemID, Path: "images/front.jpg"}
	orphan := &models.ItemImage{ImageID: uuid.New(), OrgID: f.org.OrgID, ItemID: f.deletedItem.ItemID, Path: "images/gone.jpg"}
	f.mem.AddImage(img)
	f.mem.AddImage(orphan)

	got, err := f.queries.GetItemImage(ctx, f.actor(t, f.member), img.ImageID)
	require.NoError(t, err)
	require.Equal(t, "images/front.jpg", got.Path)

	_, err = f.queries.GetItemImage(ctx, f.actor(t, f.outsider), img.ImageID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	// Images of soft-deleted items follow the item into invisibility.
	_, err = f.queries.GetItemImage(ctx, f.actor(t, f.member), orphan.ImageID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetItemSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mem.AddSale(&models.Sale{SaleID: uuid.New(), OrgID: f.org.OrgID, ItemID: f.item.ItemID, Price: decimal.RequireFromString("1150.00"), SoldBy: f.owner.PrincipalID, SoldAt: time.Now()})

	sale, err := f.queries.GetItemSale(ctx, f.actor(t, f.member), f.item.ItemID)
	require.NoError(t, err)
	require.Equal(t, f.item.ItemID, sale.ItemID)

	_, err = f.queries.GetItemSale(ctx, f.actor(t, f.outsider), f.item.ItemID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))

	_, err = f.queries.GetItemSale(ctx, f.actor(t, f.member), uuid.New())
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestListSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mem.AddSale(&models.Sale{SaleID: uuid.New(), OrgID: f.org.OrgID, ItemID: f.item.ItemID, Price: decimal.RequireFromString("1150.00"), SoldBy: f.owner.PrincipalID, SoldAt: time.Now()})

	sales, err := f.queries.ListSales(ctx, f.actor(t, f.member), f.org.OrgID)
	require.NoError(t, err)
	require.Len(t, sales, 1)

	_, err = f.queries.ListSales(ctx, f.actor(t, f.outsider), f.org.OrgID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestListInvitesRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mem.AddInvite(&models.Invite{
		InviteID:  uuid.New(),
		OrgID:     f.org.OrgID,
		Email:     "new@example.com",
		Role:      models.RoleMember,
		Token:     "tok",
		Status:    models.InviteStatusPending,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedBy: f.owner.PrincipalID,
	})

	invites, err := f.queries.ListInvites(ctx, f.actor(t, f.owner), f.org.OrgID, true)
	require.NoError(t, err)
	require.Len(t, invites, 1)

	// Plain members cannot read invite tokens.
	_, err = f.queries.ListInvites(ctx, f.actor(t, f.member), f.org.OrgID, true)
	require.True(t, fault.IsKind(err, fault.KindPermissionDenied))

	// Non-members cannot learn the organization exists.
	_, err = f.queries.ListInvites(ctx, f.actor(t, f.outsider), f.org.OrgID, true)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetInviteRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invite := &models.Invite{
		InviteID:  uuid.New(),
		OrgID:     f.org.OrgID,
		Email:     "new@example.com",
		Role:      models.RoleMember,
		Token:     "tok",
		Status:    models.InviteStatusPending,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedBy: f.owner.PrincipalID,
	}
	f.mem.AddInvite(invite)

	got, err := f.queries.GetInvite(ctx, f.actor(t, f.owner), invite.InviteID)
	require.NoError(t, err)
	require.Equal(t, "tok", got.Token)

	_, err = f.queries.GetInvite(ctx, f.actor(t, f.member), invite.InviteID)
	require.True(t, fault.IsKind(err, fault.KindPermissionDenied))

	// Non-members cannot learn the invite exists.
	_, err = f.queries.GetInvite(ctx, f.actor(t, f.outsider), invite.InviteID)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestListAuditEntriesRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mem.AddAuditEntry(&models.AuditEntry{
		AuditID:   uuid.New(),
		OrgID:     f.org.OrgID,
		TableName: "items",
		RecordID:  f.item.ItemID,
		Op:        models.AuditOpInsert,
		ActorID:   f.owner.PrincipalID,
		CreatedAt: time.Now(),
	})

	entries, err := f.queries.ListAuditEntries(ctx, f.actor(t, f.owner), f.org.OrgID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = f.queries.ListAuditEntries(ctx, f.actor(t, f.member), f.org.OrgID, 10)
	require.True(t, fault.IsKind(err, fault.KindPermissionDenied))

	_, err = f.queries.ListAuditEntries(ctx, f.actor(t, f.outsider), f.org.OrgID, 10)
	require.True(t, fault.IsKind(err, fault.KindNotFound))
}
