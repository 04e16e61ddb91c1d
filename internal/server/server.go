// Package server is the HTTP shell over the tenancy core. Handlers decode
// JSON, resolve the acting principal, call a procedure or query, and map
// the fault taxonomy onto status codes. No authorization decisions live
// here.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/moodysoft/cardstash/internal/auth"
	"github.com/moodysoft/cardstash/internal/logger"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
	"github.com/moodysoft/cardstash/internal/procedures"
	"github.com/moodysoft/cardstash/internal/query"
	"github.com/moodysoft/cardstash/internal/store"
)

// Mutator is the procedure surface the server calls. Implemented by
// procedures.Procedures; narrowed to an interface so handler tests can
// stub it.
type Mutator interface {
	EnsurePrincipal(ctx context.Context, subject, email, name string) (*models.Principal, error)
	CreateOrganization(ctx context.Context, actor *policy.Actor, name, slug string) (*models.Organization, error)
	SoftDeleteOrganization(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) error
	LeaveOrganization(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) error
	CreateInvite(ctx context.Context, actor *policy.Actor, orgID uuid.UUID, email string, role models.Role, ttl time.Duration) (*models.Invite, error)
	RevokeInvite(ctx context.Context, actor *policy.Actor, inviteID uuid.UUID) error
	AcceptInvite(ctx context.Context, actor *policy.Actor, token string) (*models.Membership, error)
	CreateItem(ctx context.Context, actor *policy.Actor, params procedures.CreateItemParams) (*models.Item, error)
	UpdateItem(ctx context.Context, actor *policy.Actor, itemID uuid.UUID, params procedures.UpdateItemParams) (*models.Item, error)
	SoftDeleteItem(ctx context.Context, actor *policy.Actor, itemID uuid.UUID) error
	MarkItemSold(ctx context.Context, actor *policy.Actor, itemID uuid.UUID, price decimal.Decimal, buyerInfo *string) (*models.Sale, error)
	AddItemImage(ctx context.Context, actor *policy.Actor, itemID uuid.UUID, path string, position int32) (*models.ItemImage, error)
	RemoveItemImage(ctx context.Context, actor *policy.Actor, imageID uuid.UUID) error
}

var _ Mutator = (*procedures.Procedures)(nil)

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// JWTPublicKeyPEM verifies incoming identity tokens.
	JWTPublicKeyPEM string

	// Dev enables verbose request logging and gin debug mode.
	Dev bool
}

// Server hosts the HTTP API.
type Server struct {
	cfg     Config
	router  *gin.Engine
	procs   Mutator
	queries *query.Queries
	engine  *policy.Engine
}

// New creates the server and wires all routes.
func New(cfg Config, log zerolog.Logger, procs Mutator, queries *query.Queries, engine *policy.Engine) (*Server, error) {
	verifier, err := auth.NewVerifierFromPEM(cfg.JWTPublicKeyPEM)
	if err != nil {
		return nil, err
	}

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:     cfg,
		procs:   procs,
		queries: queries,
		engine:  engine,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Requests(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1")
	v1.Use(s.authRequired(verifier))
	{
		v1.GET("/me", s.getMe)
		v1.GET("/colleagues", s.listColleagues)

		v1.POST("/orgs", s.createOrganization)
		v1.GET("/orgs", s.listOrganizations)
		v1.GET("/orgs/:orgID", s.getOrganization)
		v1.DELETE("/orgs/:orgID", s.deleteOrganization)
		v1.POST("/orgs/:orgID/leave", s.leaveOrganization)
		v1.GET("/orgs/:orgID/members", s.listMembers)
		v1.GET("/orgs/:orgID/members/:principalID", s.getMembership)

		v1.POST("/orgs/:orgID/invites", s.createInvite)
		v1.GET("/orgs/:orgID/invites", s.listInvites)
		v1.GET("/invites/:inviteID", s.getInvite)
		v1.DELETE("/invites/:inviteID", s.revokeInvite)
		v1.POST("/invites/accept", s.acceptInvite)

		v1.POST("/orgs/:orgID/items", s.createItem)
		v1.GET("/orgs/:orgID/items", s.listItems)
		v1.GET("/items/:itemID", s.getItem)
		v1.PATCH("/items/:itemID", s.updateItem)
		v1.DELETE("/items/:itemID", s.deleteItem)
		v1.POST("/items/:itemID/sell", s.sellItem)
		v1.GET("/items/:itemID/sale", s.getItemSale)
		v1.GET("/orgs/:orgID/sales", s.listSales)

		v1.POST("/items/:itemID/images", s.addItemImage)
		v1.GET("/items/:itemID/images", s.listItemImages)
		v1.GET("/images/:imageID", s.getItemImage)
		v1.DELETE("/images/:imageID", s.removeItemImage)

		v1.GET("/orgs/:orgID/audit", s.listAuditEntries)
	}

	s.router = router
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// itemFilterFromQuery parses the optional status filter.
func itemFilterFromQuery(c *gin.Context) (store.ItemFilter, error) {
	var filter store.ItemFilter
	if raw, ok := c.GetQuery("status"); ok {
		status := models.ItemStatus(raw)
		if !status.Valid() {
			return filter, errInvalidStatus(raw)
		}
		filter.Status = &status
	}
	return filter, nil
}
