package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/models"
)

const followUpLayout = "2006-01-02"

type LeadsCmd struct {
	ClientFlags `embed:""`
	ID          int64 `help:"Show a single lead in full"`
	JSON        bool  `help:"Print JSON instead of a table"`
}

func (c *LeadsCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)
	cl := c.client()

	if c.ID != 0 {
		lead, err := cl.GetLead(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("failed to get lead: %w", err)
		}
		return writeJSON(os.Stdout, lead)
	}

	leads, err := cl.ListLeads(ctx)
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}

	if c.JSON {
		return writeJSON(os.Stdout, api.LeadList{Leads: leads})
	}
	return printLeads(os.Stdout, leads)
}

func printLeads(w io.Writer, leads []api.Lead) error {
	if len(leads) == 0 {
		_, err := fmt.Fprintln(w, "No leads found")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOMPANY\tNAME\tSTAGE\tFOLLOW UP\tCLAIMED")
	for _, lead := range leads {
		followUp := "-"
		if lead.FollowUpDate != nil {
			followUp = lead.FollowUpDate.Format(followUpLayout)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			lead.ID,
			lead.CompanyID,
			lead.Name,
			lead.PipelineStage,
			followUp,
			lead.CreatedAt.Format(time.RFC3339),
		)
	}
	return tw.Flush()
}

type UpdateLeadCmd struct {
	ClientFlags `embed:""`
	LeadID      int64  `arg:"" help:"Lead ID to update"`
	Stage       string `help:"Pipeline stage (new, contacted, qualified, proposal, won, lost)"`
	Notes       string `help:"Replace the lead notes"`
	FollowUp    string `help:"Follow up date (YYYY-MM-DD)"`
	Contact     string `help:"Preferred contact method (phone or email)"`
}

func (c *UpdateLeadCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)

	update, err := c.update()
	if err != nil {
		return err
	}

	lead, err := c.client().UpdateLead(ctx, c.LeadID, update)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}

	return writeJSON(os.Stdout, lead)
}

// update builds a partial update from the flags that were set.
func (c *UpdateLeadCmd) update() (api.LeadUpdate, error) {
	var update api.LeadUpdate
	if c.Stage != "" {
		if !models.ValidPipelineStage(c.Stage) {
			return update, fmt.Errorf("invalid pipeline stage %q", c.Stage)
		}
		update.PipelineStage = &c.Stage
	}
	if c.Notes != "" {
		update.Notes = &c.Notes
	}
	if c.FollowUp != "" {
		followUp, err := time.Parse(followUpLayout, c.FollowUp)
		if err != nil {
			return update, fmt.Errorf("invalid follow up date %q, expected YYYY-MM-DD: %w", c.FollowUp, err)
		}
		update.FollowUpDate = &followUp
	}
	if c.Contact != "" {
		if !models.ValidContactMethod(c.Contact) {
			return update, fmt.Errorf("invalid contact method %q", c.Contact)
		}
		update.PreferredContact = &c.Contact
	}

	if update == (api.LeadUpdate{}) {
		return update, errors.New("nothing to update, set at least one of --stage, --notes, --follow-up or --contact")
	}
	return update, nil
}
