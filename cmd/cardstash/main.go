package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/moodysoft/cardstash/cmd/cardstash/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Dev     bool `help:"Enable development mode (debug logging, verbose HTTP)."`
		Version kong.VersionFlag
		Server  commands.ServerCmd  `cmd:"" help:"Start the API server"`
		Migrate commands.MigrateCmd `cmd:"" help:"Run database migrations"`
		Token   commands.TokenCmd   `cmd:"" help:"Issue a signed identity token (development helper)"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Dev: cli.Dev, Version: version})
	cmd.FatalIfErrorf(err)
}
