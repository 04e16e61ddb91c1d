package procedures

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
)

// CreateOrganization creates an organization and its founding owner
// membership in one transaction. Any authenticated principal may create an
// organization; the caller becomes its first owner.
func (p *Procedures) CreateOrganization(ctx context.Context, actor *policy.Actor, name, slug string) (*models.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fault.Validationf("organization name must not be empty")
	}
	if err := validateSlug(slug); err != nil {
		return nil, err
	}

	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate org id")
	}
	membershipID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate membership id")
	}

	var org models.Organization
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		insertOrg := `
			INSERT INTO organizations (org_id, name, slug)
			VALUES ($1, $2, $3)
			RETURNING org_id, name, slug, created_at, updated_at, deleted_at
		`
		err := tx.QueryRow(ctx, insertOrg, orgID, name, slug).Scan(
			&org.OrgID,
			&org.Name,
			&org.Slug,
			&org.CreatedAt,
			&org.UpdatedAt,
			&org.DeletedAt,
		)
		if err != nil {
			if uniqueViolationOn(err, "idx_organizations_slug") {
				return fault.Conflictf("slug %q is already taken", slug)
			}
			return fault.Internalf(err, "failed to insert organization")
		}

		membership := models.Membership{
			MembershipID: membershipID,
			OrgID:        orgID,
			PrincipalID:  actor.PrincipalID,
			Role:         models.RoleOwner,
		}
		insertMembership := `
			INSERT INTO memberships (membership_id, org_id, principal_id, role)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		err = tx.QueryRow(ctx, insertMembership,
			membership.MembershipID,
			membership.OrgID,
			membership.PrincipalID,
			membership.Role,
		).Scan(&membership.CreatedAt, &membership.UpdatedAt)
		if err != nil {
			return fault.Internalf(err, "failed to insert owner membership")
		}

		if err := p.recorder.Insert(ctx, tx, orgID, "organizations", orgID, &org, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit organization")
		}
		if err := p.recorder.Insert(ctx, tx, orgID, "memberships", membershipID, &membership, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit membership")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("slug", slug).
		Str("principal_id", actor.PrincipalID.String()).
		Msg("Created organization")

	return &org, nil
}

// SoftDeleteOrganization marks an organization deleted. Only an owner may
// delete; the organization and everything it owns becomes invisible to
// normal reads but remains in place for the audit trail.
func (p *Procedures) SoftDeleteOrganization(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) error {
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		lockOrg := `
			SELECT org_id, name, slug, created_at, updated_at, deleted_at
			FROM organizations
			WHERE org_id = $1
			FOR UPDATE
		`
		var before models.Organization
		err := tx.QueryRow(ctx, lockOrg, orgID).Scan(
			&before.OrgID,
			&before.Name,
			&before.Slug,
			&before.CreatedAt,
			&before.UpdatedAt,
			&before.DeletedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFoundf("organization not found")
		}
		if err != nil {
			return fault.Internalf(err, "failed to lock organization")
		}

		// Raw membership lookup, without the live-org join: the owner of
		// an already-deleted organization gets Conflict, not NotFound.
		var role models.Role
		err = tx.QueryRow(ctx,
			`SELECT role FROM memberships WHERE org_id = $1 AND principal_id = $2`,
			orgID, actor.PrincipalID,
		).Scan(&role)
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFoundf("organization not found")
		}
		if err != nil {
			return fault.Internalf(err, "failed to resolve role")
		}
		if role != models.RoleOwner {
			return fault.PermissionDeniedf("only an owner can delete an organization")
		}
		if before.IsDeleted() {
			return fault.Conflictf("organization is already deleted")
		}

		after := before
		updateOrg := `
			UPDATE organizations
			SET deleted_at = NOW(), updated_at = NOW()
			WHERE org_id = $1
			RETURNING updated_at, deleted_at
		`
		if err := tx.QueryRow(ctx, updateOrg, orgID).Scan(&after.UpdatedAt, &after.DeletedAt); err != nil {
			return fault.Internalf(err, "failed to delete organization")
		}

		if err := p.recorder.Update(ctx, tx, orgID, "organizations", orgID, &before, &after, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit organization delete")
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("principal_id", actor.PrincipalID.String()).
		Msg("Soft-deleted organization")

	return nil
}

// LeaveOrganization removes the caller's own membership. The last owner of
// a live organization cannot leave; the ownership invariant is enforced
// under row locks so two concurrent owners cannot both slip out.
func (p *Procedures) LeaveOrganization(ctx context.Context, actor *policy.Actor, orgID uuid.UUID) error {
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the caller's membership and every owner membership in one
		// ordered pass, so concurrent leaves serialize instead of
		// deadlocking.
		lock := `
			SELECT m.membership_id, m.org_id, m.principal_id, m.role, m.created_at, m.updated_at
			FROM memberships m
			JOIN organizations o ON o.org_id = m.org_id
			WHERE m.org_id = $1 AND o.deleted_at IS NULL
			  AND (m.role = 'owner' OR m.principal_id = $2)
			ORDER BY m.membership_id
			FOR UPDATE OF m
		`
		rows, err := tx.Query(ctx, lock, orgID, actor.PrincipalID)
		if err != nil {
			return fault.Internalf(err, "failed to lock memberships")
		}
		defer rows.Close()

		var mine *models.Membership
		owners := 0
		for rows.Next() {
			var m models.Membership
			err := rows.Scan(
				&m.MembershipID,
				&m.OrgID,
				&m.PrincipalID,
				&m.Role,
				&m.CreatedAt,
				&m.UpdatedAt,
			)
			if err != nil {
				return fault.Internalf(err, "failed to scan membership")
			}
			if m.Role == models.RoleOwner {
				owners++
			}
			if m.PrincipalID == actor.PrincipalID {
				mine = &m
			}
		}
		if err := rows.Err(); err != nil {
			return fault.Internalf(err, "failed to lock memberships")
		}

		if mine == nil {
			return fault.NotFoundf("membership not found")
		}
		if mine.Role == models.RoleOwner && owners <= 1 {
			return fault.InvariantViolationf("cannot leave as the only owner")
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM memberships WHERE membership_id = $1`,
			mine.MembershipID,
		); err != nil {
			return fault.Internalf(err, "failed to delete membership")
		}

		if err := p.recorder.Delete(ctx, tx, orgID, "memberships", mine.MembershipID, mine, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit membership delete")
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("principal_id", actor.PrincipalID.String()).
		Msg("Principal left organization")

	return nil
}
