// Package query is the read surface of the tenancy core. Every read is
// scoped twice: SQL narrows candidate rows to the caller's organizations,
// and the policy engine filters each row before it is returned. Reads take
// no locks; partial visibility is never an error.
package query

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
	"github.com/moodysoft/cardstash/internal/store"
)

// Stores bundles the read-side store interfaces the query layer needs.
type Stores struct {
	Organizations store.OrganizationStore
	Principals    store.PrincipalStore
	Memberships   store.MembershipStore
	Items         store.ItemStore
	Sales         store.SaleStore
	Invites       store.InviteStore
	Images        store.ImageStore
	Audits        store.AuditStore
}

// Queries answers policy-scoped reads for an acting principal.
type Queries struct {
	engine *policy.Engine
	stores Stores
}

// New creates the read surface.
func New(engine *policy.Engine, stores Stores) *Queries {
	return &Queries{engine: engine, stores: stores}
}

// OrganizationsFor returns the live organizations the actor belongs to,
// with the actor's role in each.
func (q *Queries) OrganizationsFor(ctx context.Context, actor *policy.Actor) ([]*store.OrganizationWithRole, error) {
	orgs, err := q.stores.Organizations.ListForPrincipal(ctx, actor.PrincipalID)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list organizations")
	}

	visible := make([]*store.OrganizationWithRole, 0, len(orgs))
	for _, o := range orgs {
		ok, err := q.engine.Can(ctx, actor, policy.OpSelect, policy.TableOrganizations, o.Organization, nil)
		if err != nil {
			return nil, fault.Internalf(err, "failed to evaluate policy")
		}
		if ok {
			visible = append(visible, o)
		}
	}
	return visible, nil
}

// GetOrganization returns one organization. Organizations the actor cannot
// see are indistinguishable from organizations that do not exist.
func (q *Queries) GetOrganization(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) (*models.Organization, error) {
	org, err := q.stores.Organizations.GetOrganization(ctx, orgID)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		return nil, fault.NotFoundf("organization not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get organization")
	}

	if err := q.visible(ctx, actor, policy.TableOrganizations, org, "organization"); err != nil {
		return nil, err
	}
	return org, nil
}

// GetOrganizationBySlug resolves an organization by its slug, with the
// same visibility rules as GetOrganization.
func (q *Queries) GetOrganizationBySlug(ctx context.Context, actor *policy.Actor, slug string) (*models.Organization, error) {
	org, err := q.stores.Organizations.GetOrganizationBySlug(ctx, slug)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		return nil, fault.NotFoundf("organization not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get organization")
	}

	if err := q.visible(ctx, actor, policy.TableOrganizations, org, "organization"); err != nil {
		return nil, err
	}
	return org, nil
}

// Me returns the caller's own profile row.
func (q *Queries) Me(ctx context.Context, actor *policy.Actor, subject string) (*models.Principal, error) {
	p, err := q.stores.Principals.GetBySubject(ctx, subject)
	if errors.Is(err, store.ErrPrincipalNotFound) {
		return nil, fault.NotFoundf("profile not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get profile")
	}

	if err := q.visible(ctx, actor, policy.TableProfiles, p, "profile"); err != nil {
		return nil, err
	}
	return p, nil
}

// Colleagues returns the principals who share at least one live
// organization with the actor.
func (q *Queries) Colleagues(ctx context.Context, actor *policy.Actor) ([]*models.Principal, error) {
	principals, err := q.stores.Principals.ListColleagues(ctx, actor.PrincipalID)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list colleagues")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableProfiles, principals)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter colleagues")
	}
	return visible, nil
}

// ListMemberships returns the memberships of an organization the actor
// belongs to.
func (q *Queries) ListMemberships(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) ([]*models.Membership, error) {
	if !actor.MemberOf(orgID) {
		return nil, fault.NotFoundf("organization not found")
	}

	memberships, err := q.stores.Memberships.ListMemberships(ctx, orgID)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list memberships")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableMemberships, memberships)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter memberships")
	}
	return visible, nil
}

// GetMembership returns one membership of an organization the actor
// belongs to.
func (q *Queries) GetMembership(ctx context.Context, actor *policy.Actor, orgID, principalID uuid.UUID) (*models.Membership, error) {
	if !actor.MemberOf(orgID) {
		return nil, fault.NotFoundf("organization not found")
	}

	m, err := q.stores.Memberships.GetMembership(ctx, orgID, principalID)
	if errors.Is(err, store.ErrMembershipNotFound) {
		return nil, fault.NotFoundf("membership not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get membership")
	}

	if err := q.visible(ctx, actor, policy.TableMemberships, m, "membership"); err != nil {
		return nil, err
	}
	return m, nil
}

// ListItems returns an organization's live items, optionally narrowed by
// status.
func (q *Queries) ListItems(ctx context.Context, actor *policy.Actor, orgID uuid.UUID, filter store.ItemFilter) ([]*models.Item, error) {
	if !actor.MemberOf(orgID) {
		return nil, fault.NotFoundf("organization not found")
	}

	items, err := q.stores.Items.ListItems(ctx, orgID, filter)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list items")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableItems, items)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter items")
	}
	return visible, nil
}

// GetItem returns one item. Soft-deleted items and items of foreign
// organizations read as absent.
func (q *Queries) GetItem(ctx context.Context, actor *policy.Actor, itemID uuid.UUID) (*models.Item, error) {
	item, err := q.stores.Items.GetItem(ctx, itemID)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, fault.NotFoundf("item not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get item")
	}

	if err := q.visible(ctx, actor, policy.TableItems, item, "item"); err != nil {
		return nil, err
	}
	return item, nil
}

// ListItemImages returns the image rows of an item the actor can see.
func (q *Queries) ListItemImages(ctx context.Context, actor *policy.Actor, itemID uuid.UUID) ([]*models.ItemImage, error) {
	// Image visibility follows the item.
	if _, err := q.GetItem(ctx, actor, itemID); err != nil {
		return nil, err
	}

	images, err := q.stores.Images.ListImages(ctx, itemID)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list images")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableItemImages, images)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter images")
	}
	return visible, nil
}

// GetItemImage returns one image row. Visibility follows the item: images
// of invisible or soft-deleted items read as absent.
func (q *Queries) GetItemImage(ctx context.Context, actor *policy.Actor, imageID uuid.UUID) (*models.ItemImage, error) {
	img, err := q.stores.Images.GetImage(ctx, imageID)
	if errors.Is(err, store.ErrImageNotFound) {
		return nil, fault.NotFoundf("image not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get image")
	}

	if _, err := q.GetItem(ctx, actor, img.ItemID); err != nil {
		if fault.IsKind(err, fault.KindNotFound) {
			return nil, fault.NotFoundf("image not found")
		}
		return nil, err
	}
	return img, nil
}

// GetItemSale returns the sale record of an item, if one exists.
func (q *Queries) GetItemSale(ctx context.Context, actor *policy.Actor, itemID uuid.UUID) (*models.Sale, error) {
	sale, err := q.stores.Sales.GetSaleForItem(ctx, itemID)
	if errors.Is(err, store.ErrSaleNotFound) {
		return nil, fault.NotFoundf("sale not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get sale")
	}

	if err := q.visible(ctx, actor, policy.TableSales, sale, "sale"); err != nil {
		return nil, err
	}
	return sale, nil
}

// ListSales returns an organization's sale records.
func (q *Queries) ListSales(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) ([]*models.Sale, error) {
	if !actor.MemberOf(orgID) {
		return nil, fault.NotFoundf("organization not found")
	}

	sales, err := q.stores.Sales.ListSales(ctx, orgID)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list sales")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableSales, sales)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter sales")
	}
	return visible, nil
}

// ListInvites returns an organization's invites. Invite rows carry the
// token, so only admins and owners may read them.
func (q *Queries) ListInvites(ctx context.Context, actor *policy.Actor, orgID uuid.UUID, pendingOnly bool) ([]*models.Invite, error) {
	if err := q.requireRole(actor, orgID, models.RoleAdmin); err != nil {
		return nil, err
	}

	invites, err := q.stores.Invites.ListInvites(ctx, orgID, pendingOnly)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list invites")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableInvites, invites)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter invites")
	}
	return visible, nil
}

// GetInvite returns one invite. Like ListInvites, admin and above only;
// non-members learn nothing.
func (q *Queries) GetInvite(ctx context.Context, actor *policy.Actor, inviteID uuid.UUID) (*models.Invite, error) {
	invite, err := q.stores.Invites.GetInvite(ctx, inviteID)
	if errors.Is(err, store.ErrInviteNotFound) {
		return nil, fault.NotFoundf("invite not found")
	}
	if err != nil {
		return nil, fault.Internalf(err, "failed to get invite")
	}

	if _, ok := actor.RoleIn(invite.OrgID); !ok {
		return nil, fault.NotFoundf("invite not found")
	}
	if err := q.requireRole(actor, invite.OrgID, models.RoleAdmin); err != nil {
		return nil, err
	}
	return invite, nil
}

// ListAuditEntries returns an organization's audit trail, newest first.
// Admin and above only.
func (q *Queries) ListAuditEntries(ctx context.Context, actor *policy.Actor, orgID uuid.UUID, limit int32) ([]*models.AuditEntry, error) {
	if err := q.requireRole(actor, orgID, models.RoleAdmin); err != nil {
		return nil, err
	}

	entries, err := q.stores.Audits.ListAuditEntries(ctx, orgID, limit)
	if err != nil {
		return nil, fault.Internalf(err, "failed to list audit entries")
	}

	visible, err := policy.FilterRows(ctx, q.engine, actor, policy.TableAuditEntries, entries)
	if err != nil {
		return nil, fault.Internalf(err, "failed to filter audit entries")
	}
	return visible, nil
}

// visible converts a false select predicate into NotFound so invisible
// rows and absent rows are indistinguishable.
func (q *Queries) visible(ctx context.Context, actor *policy.Actor, table policy.Table, row policy.Row, noun string) error {
	ok, err := q.engine.Can(ctx, actor, policy.OpSelect, table, row, nil)
	if err != nil {
		return fault.Internalf(err, "failed to evaluate policy")
	}
	if !ok {
		return fault.NotFoundf("%s not found", noun)
	}
	return nil
}

// requireRole distinguishes non-members (NotFound, existence must not
// leak) from under-privileged members (PermissionDenied).
func (q *Queries) requireRole(actor *policy.Actor, orgID uuid.UUID, role models.Role) error {
	have, ok := actor.RoleIn(orgID)
	if !ok {
		return fault.NotFoundf("organization not found")
	}
	if !have.AtLeast(role) {
		return fault.PermissionDeniedf("requires the %s role", role)
	}
	return nil
}
