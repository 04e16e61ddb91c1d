package procedures

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/moodysoft/cardstash/internal/fault"
	"github.com/moodysoft/cardstash/internal/models"
)

// EnsurePrincipal creates or refreshes the profile row for an
// authenticated identity. Called on every authenticated request; the
// identity provider is trusted to have verified the subject and email.
// Profiles are not tenant-owned, so this write is not audited.
func (p *Procedures) EnsurePrincipal(ctx context.Context, subject, email, name string) (*models.Principal, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fault.Validationf("subject must not be empty")
	}
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	principalID, err := uuid.NewV7()
	if err != nil {
		return nil, fault.Internalf(err, "failed to generate principal id")
	}

	query := `
		INSERT INTO profiles (principal_id, subject, email, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = NOW()
		RETURNING principal_id, subject, email, name, created_at, updated_at
	`

	var principal models.Principal
	err = p.pool.QueryRow(ctx, query, principalID, subject, email, name).Scan(
		&principal.PrincipalID,
		&principal.Subject,
		&principal.Email,
		&principal.Name,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	)
	if err != nil {
		return nil, fault.Internalf(err, "failed to upsert profile")
	}

	log.Debug().
		Str("principal_id", principal.PrincipalID.String()).
		Str("subject", subject).
		Msg("Ensured principal profile")

	return &principal, nil
}
