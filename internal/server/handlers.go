package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/moodysoft/cardstash/internal/auth"
	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/procedures"
)

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fault.Validationf("invalid %s", name)
	}
	return id, nil
}

func (s *Server) getMe(c *gin.Context) {
	ctx := c.Request.Context()
	info, _ := auth.PrincipalInfoFromContext(ctx)

	me, err := s.queries.Me(ctx, actorFrom(c), info.Subject)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPrincipal(me))
}

func (s *Server) listColleagues(c *gin.Context) {
	colleagues, err := s.queries.Colleagues(c.Request.Context(), actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"colleagues": mapSlice(colleagues, toPrincipal)})
}

type createOrganizationRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (s *Server) createOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	org, err := s.procs.CreateOrganization(c.Request.Context(), actorFrom(c), req.Name, req.Slug)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrganization(org))
}

func (s *Server) listOrganizations(c *gin.Context) {
	ctx := c.Request.Context()

	// An explicit slug narrows the listing to one organization.
	if slug, ok := c.GetQuery("slug"); ok {
		org, err := s.queries.GetOrganizationBySlug(ctx, actorFrom(c), slug)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"organizations": []organizationResponse{toOrganization(org)}})
		return
	}

	orgs, err := s.queries.OrganizationsFor(ctx, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": mapSlice(orgs, toOrganizationWithRole)})
}

func (s *Server) getOrganization(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	org, err := s.queries.GetOrganization(c.Request.Context(), actorFrom(c), orgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrganization(org))
}

func (s *Server) deleteOrganization(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.procs.SoftDeleteOrganization(c.Request.Context(), actorFrom(c), orgID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) leaveOrganization(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.procs.LeaveOrganization(c.Request.Context(), actorFrom(c), orgID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMembers(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	memberships, err := s.queries.ListMemberships(c.Request.Context(), actorFrom(c), orgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": mapSlice(memberships, toMembership)})
}

func (s *Server) getMembership(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}
	principalID, err := pathUUID(c, "principalID")
	if err != nil {
		writeError(c, err)
		return
	}

	m, err := s.queries.GetMembership(c.Request.Context(), actorFrom(c), orgID, principalID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMembership(m))
}

type createInviteRequest struct {
	Email      string `json:"email"`
	Role       string `json:"role"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func (s *Server) createInvite(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	var req createInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	invite, err := s.procs.CreateInvite(c.Request.Context(), actorFrom(c), orgID,
		req.Email, models.Role(req.Role), time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toInvite(invite))
}

func (s *Server) listInvites(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	pendingOnly := c.Query("pending") == "true"
	invites, err := s.queries.ListInvites(c.Request.Context(), actorFrom(c), orgID, pendingOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": mapSlice(invites, toInvite)})
}

func (s *Server) getInvite(c *gin.Context) {
	inviteID, err := pathUUID(c, "inviteID")
	if err != nil {
		writeError(c, err)
		return
	}

	invite, err := s.queries.GetInvite(c.Request.Context(), actorFrom(c), inviteID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvite(invite))
}

func (s *Server) revokeInvite(c *gin.Context) {
	inviteID, err := pathUUID(c, "inviteID")
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.procs.RevokeInvite(c.Request.Context(), actorFrom(c), inviteID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type acceptInviteRequest struct {
	Token string `json:"token"`
}

func (s *Server) acceptInvite(c *gin.Context) {
	var req acceptInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	membership, err := s.procs.AcceptInvite(c.Request.Context(), actorFrom(c), req.Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMembership(membership))
}

type createItemRequest struct {
	Name      string `json:"name"`
	SetName   string `json:"set_name"`
	Condition string `json:"condition"`
	Status    string `json:"status"`
	Price     string `json:"price"`
}

func parsePrice(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fault.Validationf("invalid price %q", raw)
	}
	return price, nil
}

func (s *Server) createItem(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		writeError(c, err)
		return
	}

	item, err := s.procs.CreateItem(c.Request.Context(), actorFrom(c), procedures.CreateItemParams{
		OrgID:     orgID,
		Name:      req.Name,
		SetName:   req.SetName,
		Condition: req.Condition,
		Status:    models.ItemStatus(req.Status),
		Price:     price,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toItem(item))
}

func (s *Server) listItems(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	filter, err := itemFilterFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	items, err := s.queries.ListItems(c.Request.Context(), actorFrom(c), orgID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": mapSlice(items, toItem)})
}

func (s *Server) getItem(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	item, err := s.queries.GetItem(c.Request.Context(), actorFrom(c), itemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toItem(item))
}

type updateItemRequest struct {
	Name      *string `json:"name"`
	SetName   *string `json:"set_name"`
	Condition *string `json:"condition"`
	Status    *string `json:"status"`
	Price     *string `json:"price"`
}

func (s *Server) updateItem(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	params := procedures.UpdateItemParams{
		Name:      req.Name,
		SetName:   req.SetName,
		Condition: req.Condition,
	}
	if req.Status != nil {
		status := models.ItemStatus(*req.Status)
		params.Status = &status
	}
	if req.Price != nil {
		price, err := parsePrice(*req.Price)
		if err != nil {
			writeError(c, err)
			return
		}
		params.Price = &price
	}

	item, err := s.procs.UpdateItem(c.Request.Context(), actorFrom(c), itemID, params)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toItem(item))
}

func (s *Server) deleteItem(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.procs.SoftDeleteItem(c.Request.Context(), actorFrom(c), itemID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type sellItemRequest struct {
	Price     string  `json:"price"`
	BuyerInfo *string `json:"buyer_info"`
}

func (s *Server) sellItem(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	var req sellItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	price, err := parsePrice(req.Price)
	if err != nil {
		writeError(c, err)
		return
	}

	sale, err := s.procs.MarkItemSold(c.Request.Context(), actorFrom(c), itemID, price, req.BuyerInfo)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSale(sale))
}

func (s *Server) getItemSale(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	sale, err := s.queries.GetItemSale(c.Request.Context(), actorFrom(c), itemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSale(sale))
}

func (s *Server) listSales(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	sales, err := s.queries.ListSales(c.Request.Context(), actorFrom(c), orgID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": mapSlice(sales, toSale)})
}

type addImageRequest struct {
	Path     string `json:"path"`
	Position int32  `json:"position"`
}

func (s *Server) addItemImage(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	var req addImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fault.Validationf("invalid request body"))
		return
	}

	img, err := s.procs.AddItemImage(c.Request.Context(), actorFrom(c), itemID, req.Path, req.Position)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toImage(img))
}

func (s *Server) listItemImages(c *gin.Context) {
	itemID, err := pathUUID(c, "itemID")
	if err != nil {
		writeError(c, err)
		return
	}

	images, err := s.queries.ListItemImages(c.Request.Context(), actorFrom(c), itemID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": mapSlice(images, toImage)})
}

func (s *Server) getItemImage(c *gin.Context) {
	imageID, err := pathUUID(c, "imageID")
	if err != nil {
		writeError(c, err)
		return
	}

	img, err := s.queries.GetItemImage(c.Request.Context(), actorFrom(c), imageID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toImage(img))
}

func (s *Server) removeItemImage(c *gin.Context) {
	imageID, err := pathUUID(c, "imageID")
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.procs.RemoveItemImage(c.Request.Context(), actorFrom(c), imageID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listAuditEntries(c *gin.Context) {
	orgID, err := pathUUID(c, "orgID")
	if err != nil {
		writeError(c, err)
		return
	}

	limit := int32(100)
	if raw, ok := c.GetQuery("limit"); ok {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 1 || n > 1000 {
			writeError(c, fault.Validationf("invalid limit %q", raw))
			return
		}
		limit = int32(n)
	}

	entries, err := s.queries.ListAuditEntries(c.Request.Context(), actorFrom(c), orgID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": mapSlice(entries, toAuditEntry)})
}
