package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/leadpool/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"LEADPOOL_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServerCmd `cmd:"" default:"withargs" help:"Start the lead pool API and notification server"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("leadpool-server"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
