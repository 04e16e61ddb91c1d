package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/moodysoft/cardstash/internal/audit"
	"github.com/moodysoft/cardstash/internal/logger"
	"github.com/moodysoft/cardstash/internal/policy"
	"github.com/moodysoft/cardstash/internal/procedures"
	"github.com/moodysoft/cardstash/internal/query"
	"github.com/moodysoft/cardstash/internal/server"
	"github.com/moodysoft/cardstash/internal/store/postgres"
)

type ServerCmd struct {
	Listen string `help:"HTTP server listen address" default:"localhost:8080" env:"CARDSTASH_LISTEN"`

	JWTPublicKeyFile string `help:"path to PEM-encoded ECDSA public key for verifying identity tokens" env:"CARDSTASH_JWT_PUBLIC_KEY_FILE" required:""`

	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (s *ServerCmd) Run(ctx context.Context, globals *Globals) error {
	logr := logger.Setup(globals.Dev)
	log.Logger = logr

	publicKeyPEM, err := os.ReadFile(s.JWTPublicKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read JWT public key: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := s.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	memberships := postgres.NewMembershipStore(pool)
	engine := policy.NewEngine(memberships)
	procs := procedures.New(pool, audit.NewRecorder(), engine)
	queries := query.New(engine, query.Stores{
		Organizations: postgres.NewOrganizationStore(pool),
		Principals:    postgres.NewPrincipalStore(pool),
		Memberships:   memberships,
		Items:         postgres.NewItemStore(pool),
		Sales:         postgres.NewSaleStore(pool),
		Invites:       postgres.NewInviteStore(pool),
		Images:        postgres.NewImageStore(pool),
		Audits:        postgres.NewAuditStore(pool),
	})

	srv, err := server.New(server.Config{
		Addr:            s.Listen,
		JWTPublicKeyPEM: string(publicKeyPEM),
		Dev:             globals.Dev,
	}, logr, procs, queries, engine)
	if err != nil {
		return err
	}

	log.Info().Str("version", globals.Version).Str("listen", s.Listen).Msg("Starting server")

	return srv.Run(ctx)
}
