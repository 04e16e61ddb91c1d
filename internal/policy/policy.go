// Package policy implements the per-row authorization predicate evaluator.
//
// For every governed table and each of select/insert/update/delete, a
// predicate over (acting principal, candidate row, proposed new row) decides
// admissibility. Tables or operations with no registered predicate are
// denied. The acting principal is always passed explicitly; there is no
// ambient "current user".
package policy

import (
	"context"

	"github.com/google/uuid"
	"github.com/moodysoft/cardstash/internal/models"
)

// Op is a governed operation kind.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table identifies a governed table.
type Table string

const (
	TableOrganizations Table = "organizations"
	TableProfiles      Table = "profiles"
	TableMemberships   Table = "memberships"
	TableItems         Table = "items"
	TableSales         Table = "sales"
	TableInvites       Table = "invites"
	TableItemImages    Table = "item_images"
	TableAuditEntries  Table = "audit_entries"
)

// Row is the minimal view of a candidate row a predicate may rely on.
// Predicates may type-assert to concrete model types for column checks.
type Row interface {
	RowOrgID() uuid.UUID
	RowDeleted() bool
}

// MembershipSource supplies the membership relation to predicates. Lookups
// exclude soft-deleted organizations, which makes those organizations and
// everything they own invisible to every predicate.
type MembershipSource interface {
	LiveRolesForPrincipal(ctx context.Context, principalID uuid.UUID) (map[uuid.UUID]models.Role, error)
	SharedOrganization(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// Actor is the acting principal with its membership roles resolved.
type Actor struct {
	PrincipalID uuid.UUID
	Email       string

	roles map[uuid.UUID]models.Role
}

// NewActor builds an actor from an explicit role map. Exposed for tests;
// production callers use Engine.ActorFor.
func NewActor(principalID uuid.UUID, email string, roles map[uuid.UUID]models.Role) *Actor {
	return &Actor{PrincipalID: principalID, Email: email, roles: roles}
}

// RoleIn returns the actor's role in an organization, if any.
func (a *Actor) RoleIn(orgID uuid.UUID) (models.Role, bool) {
	role, ok := a.roles[orgID]
	return role, ok
}

// MemberOf reports whether the actor holds any role in the organization.
func (a *Actor) MemberOf(orgID uuid.UUID) bool {
	_, ok := a.roles[orgID]
	return ok
}

// Engine evaluates row policies against a membership source.
type Engine struct {
	source MembershipSource
}

// NewEngine creates a policy engine backed by the given membership source.
func NewEngine(source MembershipSource) *Engine {
	return &Engine{source: source}
}

// ActorFor resolves the acting principal's membership roles. The snapshot
// is per-request; privileged procedures re-check roles inside their own
// transactions and never trust a previously resolved actor.
func (e *Engine) ActorFor(ctx context.Context, principalID uuid.UUID, email string) (*Actor, error) {
	roles, err := e.source.LiveRolesForPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return NewActor(principalID, email, roles), nil
}

// Can reports whether the actor may perform op on the given row. old is the
// existing row (select/update/delete); next is the proposed row
// (insert/update). Unregistered tables and operations are denied.
func (e *Engine) Can(ctx context.Context, actor *Actor, op Op, table Table, old, next Row) (bool, error) {
	ops, ok := rules[table]
	if !ok {
		return false, nil
	}
	pred, ok := ops[op]
	if !ok {
		return false, nil
	}

	req := &request{ctx: ctx, engine: e, actor: actor, old: old, next: next}
	allowed := pred(req)
	if req.err != nil {
		return false, req.err
	}
	return allowed, nil
}

// FilterRows evaluates the select predicate per row and returns the visible
// subset. Partial visibility is never an error.
func FilterRows[T Row](ctx context.Context, e *Engine, actor *Actor, table Table, rows []T) ([]T, error) {
	visible := make([]T, 0, len(rows))
	for _, row := range rows {
		ok, err := e.Can(ctx, actor, OpSelect, table, row, nil)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, row)
		}
	}
	return visible, nil
}

// request carries one evaluation. Membership lookups that fail record a
// sticky error and evaluate as deny.
type request struct {
	ctx    context.Context
	engine *Engine
	actor  *Actor
	old    Row
	next   Row
	err    error
}

type predicate func(r *request) bool

func (r *request) memberOf(orgID uuid.UUID) bool {
	return r.actor.MemberOf(orgID)
}

func (r *request) roleAtLeast(orgID uuid.UUID, role models.Role) bool {
	have, ok := r.actor.RoleIn(orgID)
	return ok && have.AtLeast(role)
}

func (r *request) sharesOrganization(other uuid.UUID) bool {
	if r.actor.PrincipalID == other {
		return true
	}
	shared, err := r.engine.source.SharedOrganization(r.ctx, r.actor.PrincipalID, other)
	if err != nil {
		r.err = err
		return false
	}
	return shared
}
