// Package procedures implements the privileged mutations of the tenancy
// core. Each procedure runs as a single serializable transaction: it locks
// the rows it depends on, re-checks the caller's role inside the
// transaction, applies the mutation, and writes the audit entries before
// commit. No procedure leaves partial state behind on any error path.
//
// Callers receive errors from the fault taxonomy and must branch on the
// kind, never on message text.
package procedures

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodysoft/cardstash/internal/audit"
	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
)

// Procedures executes the privileged mutations against a shared pool.
type Procedures struct {
	pool     *pgxpool.Pool
	recorder *audit.Recorder
	engine   *policy.Engine
}

// New creates the procedure executor. The policy engine is consulted for
// the non-elevated governed writes (items, item images); the elevated
// procedures carry their own explicit role checks.
func New(pool *pgxpool.Pool, recorder *audit.Recorder, engine *policy.Engine) *Procedures {
	return &Procedures{
		pool:     pool,
		recorder: recorder,
		engine:   engine,
	}
}

// withTx runs fn inside a serializable transaction, committing on nil and
// rolling back on error. Serialization failures and deadlocks are retried
// with backoff; fn must confine all side effects to the transaction.
func (p *Procedures) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := p.runTx(ctx, fn)
		if err != nil && !isRetryableTxError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
	return err
}

func (p *Procedures) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fault.Internalf(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isRetryableTxError(err) {
			return err
		}
		return fault.Internalf(err, "failed to commit transaction")
	}
	return nil
}

// isRetryableTxError reports whether err is a transient transaction
// conflict that a fresh attempt can resolve.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		(pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected)
}

// roleTx resolves the principal's role in an organization within the
// transaction. Soft-deleted organizations yield no role, which makes them
// indistinguishable from organizations that never existed.
func roleTx(ctx context.Context, tx pgx.Tx, orgID, principalID uuid.UUID) (models.Role, bool, error) {
	query := `
		SELECT m.role
		FROM memberships m
		JOIN organizations o ON o.org_id = m.org_id
		WHERE m.org_id = $1 AND m.principal_id = $2 AND o.deleted_at IS NULL
	`

	var role models.Role
	err := tx.QueryRow(ctx, query, orgID, principalID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fault.Internalf(err, "failed to resolve role")
	}
	return role, true, nil
}

// actorTx rebuilds the acting principal from the membership rows visible
// inside the transaction. Procedures never trust a role snapshot resolved
// before the transaction began.
func actorTx(ctx context.Context, tx pgx.Tx, actor *policy.Actor) (*policy.Actor, error) {
	query := `
		SELECT m.org_id, m.role
		FROM memberships m
		JOIN organizations o ON o.org_id = m.org_id
		WHERE m.principal_id = $1 AND o.deleted_at IS NULL
	`

	rows, err := tx.Query(ctx, query, actor.PrincipalID)
	if err != nil {
		return nil, fault.Internalf(err, "failed to resolve memberships")
	}
	defer rows.Close()

	roles := make(map[uuid.UUID]models.Role)
	for rows.Next() {
		var orgID uuid.UUID
		var role models.Role
		if err := rows.Scan(&orgID, &role); err != nil {
			return nil, fault.Internalf(err, "failed to scan membership")
		}
		roles[orgID] = role
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Internalf(err, "failed to resolve memberships")
	}

	return policy.NewActor(actor.PrincipalID, actor.Email, roles), nil
}

// uniqueViolationOn reports whether err is a unique violation on the named
// constraint.
func uniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.UniqueViolation &&
		pgErr.ConstraintName == constraint
}
