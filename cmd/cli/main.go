package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/leadpool/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Token      commands.TokenCmd      `cmd:"" help:"Issue an access token for a user"`
		Companies  commands.CompaniesCmd  `cmd:"" help:"List companies in the pool"`
		Claim      commands.ClaimCmd      `cmd:"" help:"Claim a company as a lead"`
		Unclaim    commands.UnclaimCmd    `cmd:"" help:"Release a claimed company back to the pool"`
		Leads      commands.LeadsCmd      `cmd:"" help:"List your leads"`
		UpdateLead commands.UpdateLeadCmd `cmd:"" name:"update-lead" help:"Update the workflow fields of a lead"`
		Watch      commands.WatchCmd      `cmd:"" help:"Stream claim notifications"`
		Debug      bool                   `help:"Enable debug mode."`
		Version    kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("leadpool"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
