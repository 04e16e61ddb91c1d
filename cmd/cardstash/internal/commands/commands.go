package commands

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moodysoft/cardstash/internal/store/postgres"
)

type Globals struct {
	Dev     bool
	Version string
}

// PostgresFlags are the database flags shared by the server and migrate
// commands.
type PostgresFlags struct {
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection pool tuning
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"CARDSTASH_POSTGRES_AUTO_MIGRATE"`
}

func (f *PostgresFlags) connect(ctx context.Context) (*pgxpool.Pool, error) {
	if f.ConnString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}

	pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{
		ConnString:      f.ConnString,
		MaxConns:        f.MaxConns,
		MinConns:        f.MinConns,
		MaxConnLifetime: f.MaxConnLifetime,
		MaxConnIdleTime: f.MaxConnIdleTime,
	})
	if err != nil {
		return nil, err
	}

	if f.AutoMigrate {
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return pool, nil
}
