package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/client"
)

type CompaniesCmd struct {
	ClientFlags `embed:""`
	Claimed     bool `help:"Only show claimed companies" xor:"claimed"`
	Unclaimed   bool `help:"Only show unclaimed companies" xor:"claimed"`
	Mine        bool `help:"Only show companies you own"`
	Limit       int  `help:"Maximum number of companies" default:"50"`
	Offset      int  `help:"Number of companies to skip" default:"0"`
	JSON        bool `help:"Print JSON instead of a table"`
}

func (c *CompaniesCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)

	companies, err := c.client().ListCompanies(ctx, c.options())
	if err != nil {
		return fmt.Errorf("failed to list companies: %w", err)
	}

	if c.JSON {
		return writeJSON(os.Stdout, api.CompanyList{Companies: companies})
	}
	return printCompanies(os.Stdout, companies)
}

func (c *CompaniesCmd) options() client.ListOptions {
	opts := client.ListOptions{Mine: c.Mine, Limit: c.Limit, Offset: c.Offset}
	switch {
	case c.Claimed:
		claimed := true
		opts.Claimed = &claimed
	case c.Unclaimed:
		claimed := false
		opts.Claimed = &claimed
	}
	return opts
}

func printCompanies(w io.Writer, companies []api.Company) error {
	if len(companies) == 0 {
		_, err := fmt.Fprintln(w, "No companies found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCONTACTS\tPHONES\tEMAILS")
	for _, company := range companies {
		status := "available"
		if company.Claimed {
			status = "claimed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n",
			company.ID,
			company.Name,
			status,
			strings.Join(company.Contacts, ", "),
			len(company.Phones),
			len(company.Emails),
		)
	}
	return tw.Flush()
}
