package procedures

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
	"github.com/moodysoft/cardstash/internal/policy"
)

// CreateInvite issues an invite for an email address to join an
// organization with a role. Requires admin or above, and the invited role
// may not outrank the inviter's own. An existing pending invite for the
// same (organization, email) is superseded: revoked and replaced in the
// same transaction.
func (p *Procedures) CreateInvite(ctx context.Context, actor *policy.Actor, orgID uuid.UUID, email string, role models.Role, ttl time.Duration) (*models.Invite, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fault.Validationf("invalid role %q", role)
	}
	if ttl <= 0 {
		ttl = models.DefaultInviteTTL
	}

	inviteID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate invite id")
	}
	token, err := newInviteToken()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate invite token")
	}

	var invite models.Invite
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		callerRole, ok, err := roleTx(ctx, tx, orgID, actor.PrincipalID)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf("organization not found")
		}
		if !callerRole.AtLeast(models.RoleAdmin) {
			return fault.PermissionDeniedf("inviting requires the admin role")
		}
		if !callerRole.AtLeast(role) {
			return fault.PermissionDeniedf("cannot invite above your own role")
		}

		// Supersede any pending invite for the same address. The rows are
		// locked and read before the update so the audited pre-image is
		// the row exactly as it was stored.
		lockPending := `
			SELECT invite_id, org_id, email, role, token, status, expires_at,
			       created_by, accepted_by, created_at, updated_at
			FROM invites
			WHERE org_id = $1 AND lower(email) = $2 AND status = 'pending'
			FOR UPDATE
		`
		rows, err := tx.Query(ctx, lockPending, orgID, email)
		if err != nil {
			return fault.Internalf(err, "failed to lock pending invites")
		}
		superseded, err := collectInvites(rows)
		if err != nil {
			return fault.Internalf(err, "failed to lock pending invites")
		}
		for _, old := range superseded {
			after := *old
			after.Status = models.InviteStatusRevoked
			err := tx.QueryRow(ctx,
				`UPDATE invites SET status = 'revoked', updated_at = NOW() WHERE invite_id = $1 RETURNING updated_at`,
				old.InviteID,
			).Scan(&after.UpdatedAt)
			if err != nil {
				return fault.Internalf(err, "failed to supersede pending invite")
			}
			if err := p.recorder.Update(ctx, tx, orgID, "invites", old.InviteID, old, &after, actor.PrincipalID); err != nil {
				return fault.Internalf(err, "failed to audit superseded invite")
			}
		}

		insert := `
			INSERT INTO invites (invite_id, org_id, email, role, token, status, expires_at, created_by)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7)
			RETURNING invite_id, org_id, email, role, token, status, expires_at,
			          created_by, accepted_by, created_at, updated_at
		`
		err = scanInviteRow(tx.QueryRow(ctx, insert,
			inviteID, orgID, email, role, token, time.Now().Add(ttl), actor.PrincipalID,
		), &invite)
		if err != nil {
			if uniqueViolationOn(err, "invites_pending_email_key") {
				return fault.Conflictf("a pending invite for %s already exists", email)
			}
			return fault.Internalf(err, "failed to insert invite")
		}

		if err := p.recorder.Insert(ctx, tx, orgID, "invites", inviteID, &invite, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit invite")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", orgID.String()).
		Str("invite_id", inviteID.String()).
		Str("role", string(role)).
		Msg("Created invite")

	return &invite, nil
}

// RevokeInvite cancels a pending invite. Requires admin or above in the
// invite's organization; only pending invites can be revoked.
func (p *Procedures) RevokeInvite(ctx context.Context, actor *policy.Actor, inviteID uuid.UUID) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		lock := `
			SELECT invite_id, org_id, email, role, token, status, expires_at,
			       created_by, accepted_by, created_at, updated_at
			FROM invites
			WHERE invite_id = $1
			FOR UPDATE
		`
		var before models.Invite
		err := scanInviteRow(tx.QueryRow(ctx, lock, inviteID), &before)
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFoundf("invite not found")
		}
		if err != nil {
			return fault.Internalf(err, "failed to lock invite")
		}

		callerRole, ok, err := roleTx(ctx, tx, before.OrgID, actor.PrincipalID)
		if err != nil {
			return err
		}
		if !ok {
			return fault.NotFoundf("invite not found")
		}
		if !callerRole.AtLeast(models.RoleAdmin) {
			return fault.PermissionDeniedf("revoking an invite requires the admin role")
		}
		if before.Status != models.InviteStatusPending {
			return fault.Conflictf("invite is not pending")
		}

		after := before
		update := `
			UPDATE invites
			SET status = 'revoked', updated_at = NOW()
			WHERE invite_id = $1
			RETURNING status, updated_at
		`
		if err := tx.QueryRow(ctx, update, inviteID).Scan(&after.Status, &after.UpdatedAt); err != nil {
			return fault.Internalf(err, "failed to revoke invite")
		}

		if err := p.recorder.Update(ctx, tx, before.OrgID, "invites", inviteID, &before, &after, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit invite revoke")
		}
		return nil
	})
}

// AcceptInvite redeems an invite token and creates the membership it
// grants. The invite row is locked for the duration of the checks so
// concurrent acceptances serialize: exactly one succeeds, the rest observe
// the accepted state and get Conflict.
func (p *Procedures) AcceptInvite(ctx context.Context, actor *policy.Actor, token string) (*models.Membership, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fault.Validationf("invite token must not be empty")
	}

	membershipID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate membership id")
	}

	var membership models.Membership
	err = p.withTx(ctx, func(tx pgx.Tx) error {
		lock := `
			SELECT i.invite_id, i.org_id, i.email, i.role, i.token, i.status, i.expires_at,
			       i.created_by, i.accepted_by, i.created_at, i.updated_at,
			       o.deleted_at
			FROM invites i
			JOIN organizations o ON o.org_id = i.org_id
			WHERE i.token = $1
			FOR UPDATE OF i
		`
		var before models.Invite
		var orgDeletedAt *time.Time
		err := tx.QueryRow(ctx, lock, token).Scan(
			&before.InviteID,
			&before.OrgID,
			&before.Email,
			&before.Role,
			&before.Token,
			&before.Status,
			&before.ExpiresAt,
			&before.CreatedBy,
			&before.AcceptedBy,
			&before.CreatedAt,
			&before.UpdatedAt,
			&orgDeletedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			return fault.NotFoundf("invite not found")
		}
		if err != nil {
			return fault.Internalf(err, "failed to lock invite")
		}

		// Ordered state checks. Revocation and prior acceptance outrank
		// expiry so the caller learns the true reason the token is dead.
		switch {
		case before.Status == models.InviteStatusRevoked:
			return fault.Conflictf("invite has been revoked")
		case before.Status == models.InviteStatusAccepted:
			return fault.Conflictf("invite has already been accepted")
		case before.IsExpired(time.Now()):
			return fault.Conflictf("invite has expired")
		case orgDeletedAt != nil:
			return fault.NotFoundf("organization not found")
		}

		if normalizeEmail(actor.Email) != before.Email {
			return fault.PermissionDeniedf("invite was issued to a different email address")
		}

		membership = models.Membership{
			MembershipID: membershipID,
			OrgID:        before.OrgID,
			PrincipalID:  actor.PrincipalID,
			Role:         before.Role,
		}
		insert := `
			INSERT INTO memberships (membership_id, org_id, principal_id, role)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		err = tx.QueryRow(ctx, insert,
			membership.MembershipID,
			membership.OrgID,
			membership.PrincipalID,
			membership.Role,
		).Scan(&membership.CreatedAt, &membership.UpdatedAt)
		if err != nil {
			if uniqueViolationOn(err, "memberships_org_principal_key") {
				return fault.Conflictf("already a member of this organization")
			}
			return fault.Internalf(err, "failed to insert membership")
		}

		after := before
		after.Status = models.InviteStatusAccepted
		after.AcceptedBy = &actor.PrincipalID
		update := `
			UPDATE invites
			SET status = 'accepted', accepted_by = $2, updated_at = NOW()
			WHERE invite_id = $1
			RETURNING updated_at
		`
		if err := tx.QueryRow(ctx, update, before.InviteID, actor.PrincipalID).Scan(&after.UpdatedAt); err != nil {
			return fault.Internalf(err, "failed to mark invite accepted")
		}

		if err := p.recorder.Insert(ctx, tx, before.OrgID, "memberships", membershipID, &membership, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit membership")
		}
		if err := p.recorder.Update(ctx, tx, before.OrgID, "invites", before.InviteID, &before, &after, actor.PrincipalID); err != nil {
			return fault.Internalf(err, "failed to audit invite accept")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", membership.OrgID.String()).
		Str("principal_id", actor.PrincipalID.String()).
		Str("role", string(membership.Role)).
		Msg("Accepted invite")

	return &membership, nil
}

func scanInviteRow(row pgx.Row, invite *models.Invite) error {
	return row.Scan(
		&invite.InviteID,
		&invite.OrgID,
		&invite.Email,
		&invite.Role,
		&invite.Token,
		&invite.Status,
		&invite.ExpiresAt,
		&invite.CreatedBy,
		&invite.AcceptedBy,
		&invite.CreatedAt,
		&invite.UpdatedAt,
	)
}

func collectInvites(rows pgx.Rows) ([]*models.Invite, error) {
	defer rows.Close()

	var invites []*models.Invite
	for rows.Next() {
		var invite models.Invite
		if err := scanInviteRow(rows, &invite); err != nil {
			return nil, err
		}
		invites = append(invites, &invite)
	}
	return invites, rows.Err()
}
