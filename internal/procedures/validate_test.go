package procedures

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/moodysoft/cardstash/internal/fault"
)

func TestValidateSlug(t *testing.T) {
	valid := []string{"moody-cards", "a", "shop42", "x-1-y", "two--hyphens"}
	for _, slug := range valid {
		require.NoError(t, validateSlug(slug), "slug %q", slug)
	}

	invalid := []string{"", "Moody", "-cards", "cards-", "under_score", "space cards", "api"}
	for _, slug := range invalid {
		err := validateSlug(slug)
		require.Error(t, err, "slug %q", slug)
		require.True(t, fault.IsKind(err, fault.KindValidation), "slug %q", slug)
	}
}

func TestValidateSlugLength(t *testing.T) {
	long := make([]byte, 63)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, validateSlug(string(long)))
	require.Error(t, validateSlug(string(long)+"a"))
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "casey@moodycards.example", normalizeEmail("  Casey@MoodyCards.example "))
}

func TestValidateEmail(t *testing.T) {
	require.NoError(t, validateEmail("casey@moodycards.example"))

	for _, email := range []string{"", "casey", "@example.com", "casey@"} {
		err := validateEmail(email)
		require.Error(t, err, "email %q", email)
		require.True(t, fault.IsKind(err, fault.KindValidation))
	}
}

func TestNewInviteToken(t *testing.T) {
	a, err := newInviteToken()
	require.NoError(t, err)
	require.NotEmpty(t, a)

	b, err := newInviteToken()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
