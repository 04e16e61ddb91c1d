// Package memory provides an in-memory implementation of the read-side
// store interfaces. This implementation is for testing only - data is lost
// on restart, and the privileged procedures (which need real row locking)
// are not available against it.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/store"
)

// Store implements the read-side store interfaces over shared in-memory
// maps. The interfaces join across entities (roles exclude soft-deleted
// organizations, colleagues span memberships), so one struct holds all of
// them rather than one store per entity.
type Store struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization
	principals    map[uuid.UUID]*models.Principal
	memberships   map[uuid.UUID]*models.Membership
	items         map[uuid.UUID]*models.Item
	sales         map[uuid.UUID]*models.Sale
	invites       map[uuid.UUID]*models.Invite
	images        map[uuid.UUID]*models.ItemImage
	audits        []*models.AuditEntry
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		organizations: make(map[uuid.UUID]*models.Organization),
		principals:    make(map[uuid.UUID]*models.Principal),
		memberships:   make(map[uuid.UUID]*models.Membership),
		items:         make(map[uuid.UUID]*models.Item),
		sales:         make(map[uuid.UUID]*models.Sale),
		invites:       make(map[uuid.UUID]*models.Invite),
		images:        make(map[uuid.UUID]*models.ItemImage),
	}
}

// Seed helpers. Clones are stored to avoid external modification.

func (s *Store) AddOrganization(org *models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *org
	s.organizations[org.OrgID] = &clone
}

func (s *Store) AddPrincipal(p *models.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *p
	s.principals[p.PrincipalID] = &clone
}

func (s *Store) AddMembership(m *models.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *m
	s.memberships[m.MembershipID] = &clone
}

func (s *Store) AddItem(item *models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *item
	s.items[item.ItemID] = &clone
}

func (s *Store) AddSale(sale *models.Sale) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *sale
	s.sales[sale.SaleID] = &clone
}

func (s *Store) AddInvite(invite *models.Invite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *invite
	s.invites[invite.InviteID] = &clone
}

func (s *Store) AddImage(img *models.ItemImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *img
	s.images[img.ImageID] = &clone
}

func (s *Store) AddAuditEntry(e *models.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *e
	s.audits = append(s.audits, &clone)
}

// orgLive reports whether the organization exists and is not soft-deleted.
// Callers must hold at least a read lock.
func (s *Store) orgLive(orgID uuid.UUID) bool {
	org, ok := s.organizations[orgID]
	return ok && !org.IsDeleted()
}

// --- store.OrganizationStore ---

func (s *Store) GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.organizations[orgID]
	if !ok {
		return nil, store.ErrOrganizationNotFound
	}
	clone := *org
	return &clone, nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, org := range s.organizations {
		if org.Slug == slug && !org.IsDeleted() {
			clone := *org
			return &clone, nil
		}
	}
	return nil, store.ErrOrganizationNotFound
}

func (s *Store) ListForPrincipal(ctx context.Context, principalID uuid.UUID) ([]*store.OrganizationWithRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.OrganizationWithRole
	for _, m := range s.memberships {
		if m.PrincipalID != principalID || !s.orgLive(m.OrgID) {
			continue
		}
		clone := *s.organizations[m.OrgID]
		result = append(result, &store.OrganizationWithRole{Organization: &clone, Role: m.Role})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Organization.CreatedAt.After(result[j].Organization.CreatedAt)
	})
	return result, nil
}

// --- store.PrincipalStore ---

func (s *Store) Upsert(ctx context.Context, subject, email, name string) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.principals {
		if p.Subject == subject {
			p.Email = strings.ToLower(email)
			p.Name = name
			clone := *p
			return &clone, nil
		}
	}

	principalID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	p := &models.Principal{
		PrincipalID: principalID,
		Subject:     subject,
		Email:       strings.ToLower(email),
		Name:        name,
	}
	s.principals[principalID] = p
	clone := *p
	return &clone, nil
}

func (s *Store) GetPrincipal(ctx context.Context, principalID uuid.UUID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.principals[principalID]
	if !ok {
		return nil, store.ErrPrincipalNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *Store) GetBySubject(ctx context.Context, subject string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.principals {
		if p.Subject == subject {
			clone := *p
			return &clone, nil
		}
	}
	return nil, store.ErrPrincipalNotFound
}

func (s *Store) ListColleagues(ctx context.Context, principalID uuid.UUID) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool)
	var result []*models.Principal
	for _, mine := range s.memberships {
		if mine.PrincipalID != principalID || !s.orgLive(mine.OrgID) {
			continue
		}
		for _, theirs := range s.memberships {
			if theirs.OrgID != mine.OrgID || theirs.PrincipalID == principalID || seen[theirs.PrincipalID] {
				continue
			}
			if p, ok := s.principals[theirs.PrincipalID]; ok {
				seen[p.PrincipalID] = true
				clone := *p
				result = append(result, &clone)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// --- store.MembershipStore / policy.MembershipSource ---

func (s *Store) LiveRolesForPrincipal(ctx context.Context, principalID uuid.UUID) (map[uuid.UUID]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := make(map[uuid.UUID]models.Role)
	for _, m := range s.memberships {
		if m.PrincipalID == principalID && s.orgLive(m.OrgID) {
			roles[m.OrgID] = m.Role
		}
	}
	return roles, nil
}

func (s *Store) SharedOrganization(ctx context.Context, a, b uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ma := range s.memberships {
		if ma.PrincipalID != a || !s.orgLive(ma.OrgID) {
			continue
		}
		for _, mb := range s.memberships {
			if mb.PrincipalID == b && mb.OrgID == ma.OrgID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Store) GetMembership(ctx context.Context, orgID, principalID uuid.UUID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.OrgID == orgID && m.PrincipalID == principalID {
			clone := *m
			return &clone, nil
		}
	}
	return nil, store.ErrMembershipNotFound
}

func (s *Store) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Membership
	for _, m := range s.memberships {
		if m.OrgID == orgID {
			clone := *m
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- store.ItemStore ---

func (s *Store) GetItem(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[itemID]
	if !ok {
		return nil, store.ErrItemNotFound
	}
	clone := *item
	return &clone, nil
}

func (s *Store) ListItems(ctx context.Context, orgID uuid.UUID, filter store.ItemFilter) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Item
	for _, item := range s.items {
		if item.OrgID != orgID || item.IsDeleted() {
			continue
		}
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		clone := *item
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// --- store.SaleStore ---

func (s *Store) GetSaleForItem(ctx context.Context, itemID uuid.UUID) (*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ItemID == itemID {
			clone := *sale
			return &clone, nil
		}
	}
	return nil, store.ErrSaleNotFound
}

func (s *Store) ListSales(ctx context.Context, orgID uuid.UUID) ([]*models.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Sale
	for _, sale := range s.sales {
		if sale.OrgID == orgID {
			clone := *sale
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SoldAt.After(result[j].SoldAt) })
	return result, nil
}

// --- store.InviteStore ---

func (s *Store) GetInvite(ctx context.Context, inviteID uuid.UUID) (*models.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invite, ok := s.invites[inviteID]
	if !ok {
		return nil, store.ErrInviteNotFound
	}
	clone := *invite
	return &clone, nil
}

func (s *Store) ListInvites(ctx context.Context, orgID uuid.UUID, pendingOnly bool) ([]*models.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Invite
	for _, invite := range s.invites {
		if invite.OrgID != orgID {
			continue
		}
		if pendingOnly && invite.Status != models.InviteStatusPending {
			continue
		}
		clone := *invite
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// --- store.ImageStore ---

func (s *Store) GetImage(ctx context.Context, imageID uuid.UUID) (*models.ItemImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[imageID]
	if !ok {
		return nil, store.ErrImageNotFound
	}
	clone := *img
	return &clone, nil
}

func (s *Store) ListImages(ctx context.Context, itemID uuid.UUID) ([]*models.ItemImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ItemImage
	for _, img := range s.images {
		if img.ItemID == itemID {
			clone := *img
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Position < result[j].Position })
	return result, nil
}

// --- store.AuditStore ---

func (s *Store) ListAuditEntries(ctx context.Context, orgID uuid.UUID, limit int32) ([]*models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var result []*models.AuditEntry
	for i := len(s.audits) - 1; i >= 0 && int32(len(result)) < limit; i-- {
		if s.audits[i].OrgID == orgID {
			clone := *s.audits[i]
			result = append(result, &clone)
		}
	}
	return result, nil
}
