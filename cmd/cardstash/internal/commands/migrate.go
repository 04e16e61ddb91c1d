package commands

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/moodysoft/cardstash/internal/logger"
	"github.com/moodysoft/cardstash/internal/store/postgres"
)

type MigrateCmd struct {
	Postgres PostgresFlags `embed:"" prefix:"postgres-"`
}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log.Logger = logger.Setup(globals.Dev)

	// Never double-run via the AutoMigrate path.
	m.Postgres.AutoMigrate = false

	pool, err := m.Postgres.connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return err
	}

	log.Info().Msg("Migrations applied")
	return nil
}
