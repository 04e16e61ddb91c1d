package procedures

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/moodysoft/cardstash/internal/fault"
)

// slugPattern matches lowercase URL-safe slugs: letters, digits and
// hyphens, no leading or trailing hyphen, 1 to 63 characters.
var slugPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// reservedSlugs are organization slugs claimed by the platform itself.
var reservedSlugs = map[string]struct{}{
	"admin":    {},
	"api":      {},
	"app":      {},
	"docs":     {},
	"help":     {},
	"internal": {},
	"login":    {},
	"new":      {},
	"settings": {},
	"signup":   {},
	"status":   {},
	"support":  {},
	"www":      {},
}

func validateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fault.Validationf("slug %q must be lowercase letters, digits and hyphens", slug)
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return fault.Validationf("slug %q is reserved", slug)
	}
	return nil
}

// normalizeEmail lowercases and trims an email address. Emails are always
// stored and compared in this form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fault.Validationf("invalid email address %q", email)
	}
	return nil
}

// inviteTokenBytes sizes the random invite token. 24 bytes of entropy
// encodes to roughly 33 base58 characters.
const inviteTokenBytes = 24

func newInviteToken() (string, error) {
	buf := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invite token: %w", err)
	}
	return base58.Encode(buf), nil
}
