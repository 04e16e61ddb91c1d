package policy

import (
	"github.com/moodysoft/cardstash/internal/models"
)

// rules is the per-table, per-operation predicate registry. Absence means
// deny. Organization creation, membership writes, sale recording and all
// audit writes are absent on purpose: those mutations exist only as
// privileged procedures, so even a coding mistake in application code
// cannot corrupt tenancy invariants through a direct write.
var rules = map[Table]map[Op]predicate{
	TableOrganizations: {
		OpSelect: func(r *request) bool {
			org, ok := r.old.(*models.Organization)
			return ok && !org.IsDeleted() && r.memberOf(org.OrgID)
		},
		// Admins may rename the organization. Slug and deletion marker are
		// immutable here; soft deletion is a privileged procedure.
		OpUpdate: func(r *request) bool {
			org, ok := r.old.(*models.Organization)
			if !ok || org.IsDeleted() {
				return false
			}
			next, ok := r.next.(*models.Organization)
			if !ok {
				return false
			}
			return r.roleAtLeast(org.OrgID, models.RoleAdmin) &&
				next.OrgID == org.OrgID &&
				next.Slug == org.Slug &&
				next.IsDeleted() == org.IsDeleted()
		},
	},

	TableProfiles: {
		// A profile is visible to its own principal and to principals who
		// share at least one live organization with it.
		OpSelect: func(r *request) bool {
			p, ok := r.old.(*models.Principal)
			return ok && r.sharesOrganization(p.PrincipalID)
		},
		// Principals may edit their own display name. Subject and email
		// come from the identity provider and are immutable here.
		OpUpdate: func(r *request) bool {
			p, ok := r.old.(*models.Principal)
			if !ok || p.PrincipalID != r.actor.PrincipalID {
				return false
			}
			next, ok := r.next.(*models.Principal)
			if !ok {
				return false
			}
			return next.PrincipalID == p.PrincipalID &&
				next.Subject == p.Subject &&
				next.Email == p.Email
		},
	},

	TableMemberships: {
		OpSelect: func(r *request) bool {
			m, ok := r.old.(*models.Membership)
			return ok && r.memberOf(m.OrgID)
		},
		// Insert, update and delete are absent. Memberships are written
		// only by CreateOrganization, AcceptInvite and LeaveOrganization,
		// which enforce the owner-count invariant.
	},

	TableItems: {
		OpSelect: func(r *request) bool {
			item, ok := r.old.(*models.Item)
			return ok && !item.IsDeleted() && r.memberOf(item.OrgID)
		},
		OpInsert: func(r *request) bool {
			item, ok := r.next.(*models.Item)
			return ok && r.memberOf(item.OrgID) &&
				item.Status.Valid() &&
				item.Status != models.ItemStatusSold
		},
		// Members may edit items, but the sold status is entered and left
		// only through MarkItemSold, and items never move between tenants.
		OpUpdate: func(r *request) bool {
			item, ok := r.old.(*models.Item)
			if !ok || item.IsDeleted() || !r.memberOf(item.OrgID) {
				return false
			}
			next, ok := r.next.(*models.Item)
			if !ok || next.OrgID != item.OrgID || !next.Status.Valid() {
				return false
			}
			if item.Status == models.ItemStatusSold {
				return next.Status == models.ItemStatusSold
			}
			return next.Status != models.ItemStatusSold
		},
		OpDelete: func(r *request) bool {
			item, ok := r.old.(*models.Item)
			return ok && !item.IsDeleted() && r.roleAtLeast(item.OrgID, models.RoleAdmin)
		},
	},

	TableSales: {
		OpSelect: func(r *request) bool {
			sale, ok := r.old.(*models.Sale)
			return ok && r.memberOf(sale.OrgID)
		},
		// Sale records are created only by MarkItemSold and are immutable.
	},

	TableInvites: {
		// Invite rows carry the token, so they are visible to admins and
		// owners only.
		OpSelect: func(r *request) bool {
			inv, ok := r.old.(*models.Invite)
			return ok && r.roleAtLeast(inv.OrgID, models.RoleAdmin)
		},
		// State transitions happen only through the invite procedures.
	},

	TableItemImages: {
		OpSelect: func(r *request) bool {
			img, ok := r.old.(*models.ItemImage)
			return ok && r.memberOf(img.OrgID)
		},
		OpInsert: func(r *request) bool {
			img, ok := r.next.(*models.ItemImage)
			return ok && r.memberOf(img.OrgID)
		},
		OpUpdate: func(r *request) bool {
			img, ok := r.old.(*models.ItemImage)
			if !ok || !r.memberOf(img.OrgID) {
				return false
			}
			next, ok := r.next.(*models.ItemImage)
			return ok && next.OrgID == img.OrgID && next.ItemID == img.ItemID
		},
		OpDelete: func(r *request) bool {
			img, ok := r.old.(*models.ItemImage)
			return ok && r.memberOf(img.OrgID)
		},
	},

	TableAuditEntries: {
		OpSelect: func(r *request) bool {
			entry, ok := r.old.(*models.AuditEntry)
			return ok && r.roleAtLeast(entry.OrgID, models.RoleAdmin)
		},
		// The audit log is append-only and written inside governed
		// mutations; no direct writes of any kind.
	},
}
