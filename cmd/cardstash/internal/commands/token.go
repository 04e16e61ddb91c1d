package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moodysoft/cardstash/internal/auth"
)

type TokenCmd struct {
	SigningKeyFile string        `help:"path to PEM-encoded ECDSA private key" env:"CARDSTASH_JWT_SIGNING_KEY_FILE" required:""`
	Subject        string        `help:"identity provider subject" required:""`
	Email          string        `help:"verified email address" required:""`
	Name           string        `help:"display name" default:""`
	TTL            time.Duration `help:"token validity" default:"24h"`
}

func (t *TokenCmd) Run(ctx context.Context, globals *Globals) error {
	signingKeyPEM, err := os.ReadFile(t.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}

	token, err := auth.IssueToken(string(signingKeyPEM), t.Subject, t.Email, t.Name, t.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
