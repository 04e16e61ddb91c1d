package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps the fault taxonomy onto HTTP status codes. Internal
// errors are logged and masked.
func writeError(c *gin.Context, err error) {
	kind := fault.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindPermissionDenied:
		status = http.StatusForbidden
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindConflict:
		status = http.StatusConflict
	case fault.KindInvariantViolation:
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("internal error")
		c.JSON(status, errorResponse{Error: "internal error", Kind: kind.String()})
		return
	}

	c.JSON(status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

func errInvalidStatus(raw string) error {
	return fault.Validationf("invalid item status %q", raw)
}

type organizationResponse struct {
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toOrganization(org *models.Organization) organizationResponse {
	return organizationResponse{
		OrgID:     org.OrgID,
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
	}
}

func toOrganizationWithRole(o *store.OrganizationWithRole) organizationResponse {
	resp := toOrganization(o.Organization)
	resp.Role = string(o.Role)
	return resp
}

type principalResponse struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
}

func toPrincipal(p *models.Principal) principalResponse {
	return principalResponse{
		PrincipalID: p.PrincipalID,
		Email:       p.Email,
		Name:        p.Name,
	}
}

type membershipResponse struct {
	MembershipID uuid.UUID `json:"membership_id"`
	OrgID        uuid.UUID `json:"org_id"`
	PrincipalID  uuid.UUID `json:"principal_id"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func toMembership(m *models.Membership) membershipResponse {
	return membershipResponse{
		MembershipID: m.MembershipID,
		OrgID:        m.OrgID,
		PrincipalID:  m.PrincipalID,
		Role:         string(m.Role),
		CreatedAt:    m.CreatedAt,
	}
}

type itemResponse struct {
	ItemID    uuid.UUID `json:"item_id"`
	OrgID     uuid.UUID `json:"org_id"`
	Name      string    `json:"name"`
	SetName   string    `json:"set_name,omitempty"`
	Condition string    `json:"condition,omitempty"`
	Status    string    `json:"status"`
	Price     string    `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toItem(item *models.Item) itemResponse {
	return itemResponse{
		ItemID:    item.ItemID,
		OrgID:     item.OrgID,
		Name:      item.Name,
		SetName:   item.SetName,
		Condition: item.Condition,
		Status:    string(item.Status),
		Price:     item.Price.StringFixed(2),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

type saleResponse struct {
	SaleID    uuid.UUID `json:"sale_id"`
	OrgID     uuid.UUID `json:"org_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Price     string    `json:"price"`
	BuyerInfo *string   `json:"buyer_info,omitempty"`
	SoldBy    uuid.UUID `json:"sold_by"`
	SoldAt    time.Time `json:"sold_at"`
}

func toSale(sale *models.Sale) saleResponse {
	return saleResponse{
		SaleID:    sale.SaleID,
		OrgID:     sale.OrgID,
		ItemID:    sale.ItemID,
		Price:     sale.Price.StringFixed(2),
		BuyerInfo: sale.BuyerInfo,
		SoldBy:    sale.SoldBy,
		SoldAt:    sale.SoldAt,
	}
}

type inviteResponse struct {
	InviteID  uuid.UUID `json:"invite_id"`
	OrgID     uuid.UUID `json:"org_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Token     string    `json:"token"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func toInvite(invite *models.Invite) inviteResponse {
	return inviteResponse{
		InviteID:  invite.InviteID,
		OrgID:     invite.OrgID,
		Email:     invite.Email,
		Role:      string(invite.Role),
		Token:     invite.Token,
		Status:    string(invite.Status),
		ExpiresAt: invite.ExpiresAt,
		CreatedAt: invite.CreatedAt,
	}
}

type imageResponse struct {
	ImageID   uuid.UUID `json:"image_id"`
	ItemID    uuid.UUID `json:"item_id"`
	Path      string    `json:"path"`
	Position  int32     `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

func toImage(img *models.ItemImage) imageResponse {
	return imageResponse{
		ImageID:   img.ImageID,
		ItemID:    img.ItemID,
		Path:      img.Path,
		Position:  img.Position,
		CreatedAt: img.CreatedAt,
	}
}

type auditEntryResponse struct {
	AuditID   uuid.UUID       `json:"audit_id"`
	TableName string          `json:"table_name"`
	RecordID  uuid.UUID       `json:"record_id"`
	Op        string          `json:"op"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	ActorID   uuid.UUID       `json:"actor_id"`
	CreatedAt time.Time       `json:"created_at"`
}

func toAuditEntry(e *models.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		AuditID:   e.AuditID,
		TableName: e.TableName,
		RecordID:  e.RecordID,
		Op:        string(e.Op),
		Before:    e.Before,
		After:     e.After,
		ActorID:   e.ActorID,
		CreatedAt: e.CreatedAt,
	}
}

func mapSlice[T any, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
