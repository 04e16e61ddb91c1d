package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/moodysoft/cardstash/internal/auth"
	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/logger"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
	"github.com/moodysoft/cardstash/internal/procedures"
	"github.com/moodysoft/cardstash/internal/query"
	"github.com/moodysoft/cardstash/internal/store/memory"
)

// fakeMutator backs the handler tests. EnsurePrincipal delegates to the
// in-memory store; every other procedure returns a canned error so the
// status mapping can be exercised without a database.
type fakeMutator struct {
	mem *memory.Store
	err error
}

func (f *fakeMutator) EnsurePrincipal(ctx context.Context, subject, email, name string) (*models.Principal, error) {
	return f.mem.Upsert(ctx, subject, email, name)
}

func (f *fakeMutator) CreateOrganization(context.Context, *policy.Actor, string, string) (*models.Organization, error) {
	return nil, f.err
}

func (f *fakeMutator) SoftDeleteOrganization(context.Context, *policy.Actor, uuid.UUID) error {
	return f.err
}

func (f *fakeMutator) LeaveOrganization(context.Context, *policy.Actor, uuid.UUID) error {
	return f.err
}

func (f *fakeMutator) CreateInvite(context.Context, *policy.Actor, uuid.UUID, string, models.Role, time.Duration) (*models.Invite, error) {
	return nil, f.err
}

func (f *fakeMutator) RevokeInvite(context.Context, *policy.Actor, uuid.UUID) error {
	return f.err
}

func (f *fakeMutator) AcceptInvite(context.Context, *policy.Actor, string) (*models.Membership, error) {
	return nil, f.err
}

func (f *fakeMutator) CreateItem(context.Context, *policy.Actor, procedures.CreateItemParams) (*models.Item, error) {
	return nil, f.err
}

func (f *fakeMutator) UpdateItem(context.Context, *policy.Actor, uuid.UUID, procedures.UpdateItemParams) (*models.Item, error) {
	return nil, f.err
}

func (f *fakeMutator) SoftDeleteItem(context.Context, *policy.Actor, uuid.UUID) error {
	return f.err
}

func (f *fakeMutator) MarkItemSold(context.Context, *policy.Actor, uuid.UUID, decimal.Decimal, *string) (*models.Sale, error) {
	return nil, f.err
}

func (f *fakeMutator) AddItemImage(context.Context, *policy.Actor, uuid.UUID, string, int32) (*models.ItemImage, error) {
	return nil, f.err
}

func (f *fakeMutator) RemoveItemImage(context.Context, *policy.Actor, uuid.UUID) error {
	return f.err
}

type testServer struct {
	srv     *Server
	mutator *fakeMutator
	mem     *memory.Store
	keyPEM  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privateDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	privatePEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privateDER}))

	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	publicPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER}))

	mem := memory.NewStore()
	engine := policy.NewEngine(mem)
	queries := query.New(engine, query.Stores{
		Organizations: mem,
		Principals:    mem,
		Memberships:   mem,
		Items:         mem,
		Sales:         mem,
		Invites:       mem,
		Images:        mem,
		Audits:        mem,
	})

	mutator := &fakeMutator{mem: mem}
	srv, err := New(Config{Addr: ":0", JWTPublicKeyPEM: publicPEM}, logger.Setup(false), mutator, queries, engine)
	require.NoError(t, err)

	return &testServer{srv: srv, mutator: mutator, mem: mem, keyPEM: privatePEM}
}

func (ts *testServer) token(t *testing.T, email string) string {
	t.Helper()

	token, err := auth.IssueToken(ts.keyPEM, "sub-"+email, email, "Test User", time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthNoAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", "", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", "not-a-token", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token provisions the profile", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/v1/me", ts.token(t, "casey@moodycards.example"), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "casey@moodycards.example")
	})
}

func TestListOrganizations(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	principal, err := ts.mem.Upsert(ctx, "sub-casey@moodycards.example", "casey@moodycards.example", "Casey")
	require.NoError(t, err)

	org := &models.Organization{OrgID: uuid.New(), Name: "Moody Cards", Slug: "moody-cards", CreatedAt: time.Now()}
	ts.mem.AddOrganization(org)
	ts.mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: org.OrgID, PrincipalID: principal.PrincipalID, Role: models.RoleOwner})

	rec := ts.do(t, http.MethodGet, "/v1/orgs", ts.token(t, "casey@moodycards.example"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "moody-cards")
	require.Contains(t, rec.Body.String(), `"role":"owner"`)

	// A different principal sees nothing.
	rec = ts.do(t, http.MethodGet, "/v1/orgs", ts.token(t, "stranger@example.com"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"organizations":[]`)
}

func TestGetOrganizationBySlug(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	principal, err := ts.mem.Upsert(ctx, "sub-casey@moodycards.example", "casey@moodycards.example", "Casey")
	require.NoError(t, err)

	org := &models.Organization{OrgID: uuid.New(), Name: "Moody Cards", Slug: "moody-cards", CreatedAt: time.Now()}
	ts.mem.AddOrganization(org)
	ts.mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: org.OrgID, PrincipalID: principal.PrincipalID, Role: models.RoleOwner})

	rec := ts.do(t, http.MethodGet, "/v1/orgs?slug=moody-cards", ts.token(t, "casey@moodycards.example"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), org.OrgID.String())

	// Strangers cannot resolve the slug.
	rec = ts.do(t, http.MethodGet, "/v1/orgs?slug=moody-cards", ts.token(t, "stranger@example.com"), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAuditEntriesLimit(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	principal, err := ts.mem.Upsert(ctx, "sub-casey@moodycards.example", "casey@moodycards.example", "Casey")
	require.NoError(t, err)

	org := &models.Organization{OrgID: uuid.New(), Name: "Moody Cards", Slug: "moody-cards", CreatedAt: time.Now()}
	ts.mem.AddOrganization(org)
	ts.mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: org.OrgID, PrincipalID: principal.PrincipalID, Role: models.RoleOwner})

	entry := &models.AuditEntry{AuditID: uuid.New(), OrgID: org.OrgID, TableName: "items", RecordID: uuid.New(), Op: models.AuditOpInsert, ActorID: principal.PrincipalID, CreatedAt: time.Now()}
	ts.mem.AddAuditEntry(entry)

	token := ts.token(t, "casey@moodycards.example")
	base := "/v1/orgs/" + org.OrgID.String() + "/audit"

	rec := ts.do(t, http.MethodGet, base+"?limit=1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), entry.RecordID.String())

	for _, raw := range []string{"abc", "0", "-5", "100000"} {
		rec := ts.do(t, http.MethodGet, base+"?limit="+raw, token, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", raw)
	}
}

func TestGetItemVisibility(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	principal, err := ts.mem.Upsert(ctx, "sub-member@moodycards.example", "member@moodycards.example", "Member")
	require.NoError(t, err)

	org := &models.Organization{OrgID: uuid.New(), Name: "Moody Cards", Slug: "moody-cards", CreatedAt: time.Now()}
	ts.mem.AddOrganization(org)
	ts.mem.AddMembership(&models.Membership{MembershipID: uuid.New(), OrgID: org.OrgID, PrincipalID: principal.PrincipalID, Role: models.RoleMember})

	item := &models.Item{ItemID: uuid.New(), OrgID: org.OrgID, Name: "Charizard Holo", Status: models.ItemStatusAvailable, Price: decimal.RequireFromString("1200.00"), CreatedAt: time.Now()}
	ts.mem.AddItem(item)

	rec := ts.do(t, http.MethodGet, "/v1/items/"+item.ItemID.String(), ts.token(t, "member@moodycards.example"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Charizard Holo")

	// Outsiders cannot tell the item exists.
	rec = ts.do(t, http.MethodGet, "/v1/items/"+item.ItemID.String(), ts.token(t, "outsider@example.com"), "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/items/not-a-uuid", ts.token(t, "member@moodycards.example"), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "casey@moodycards.example")

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fault.Validationf("bad input"), http.StatusBadRequest},
		{"permission denied", fault.PermissionDeniedf("no"), http.StatusForbidden},
		{"not found", fault.NotFoundf("gone"), http.StatusNotFound},
		{"conflict", fault.Conflictf("taken"), http.StatusConflict},
		{"invariant violation", fault.InvariantViolationf("sole owner"), http.StatusUnprocessableEntity},
		{"internal", fault.Internalf(nil, "boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts.mutator.err = tc.err
			rec := ts.do(t, http.MethodPost, "/v1/orgs", token, `{"name":"Moody Cards","slug":"moody-cards"}`)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}
