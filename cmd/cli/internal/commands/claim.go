package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/models"
	"gopkg.in/yaml.v3"
)

type ClaimCmd struct {
	ClientFlags `embed:""`
	CompanyID   int64  `arg:"" help:"Company ID to claim"`
	Snapshot    string `help:"YAML or JSON file with the contact details to copy into the lead, the stored company details are used when omitted" type:"existingfile"`
}

func (c *ClaimCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)
	cl := c.client()

	company, err := cl.GetCompany(ctx, c.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to get company: %w", err)
	}

	req := api.ClaimRequest{CompanyName: company.Name}
	if c.Snapshot != "" {
		snapshot, err := loadSnapshot(c.Snapshot)
		if err != nil {
			return err
		}
		req.Snapshot = snapshot
	}

	leadID, err := cl.Claim(ctx, c.CompanyID, req)
	if err != nil {
		return fmt.Errorf("failed to claim company: %w", err)
	}

	fmt.Printf("Claimed %s (company %d) as lead %d\n", company.Name, c.CompanyID, leadID)
	return nil
}

// loadSnapshot reads a snapshot file. JSON is valid YAML, so one decoder handles both.
func loadSnapshot(path string) (models.Snapshot, error) {
	var snapshot models.Snapshot

	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return snapshot, nil
}

type UnclaimCmd struct {
	ClientFlags `embed:""`
	CompanyID   int64 `arg:"" help:"Company ID to release"`
}

func (c *UnclaimCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(globals)
	cl := c.client()

	company, err := cl.GetCompany(ctx, c.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to get company: %w", err)
	}

	if err := cl.Unclaim(ctx, c.CompanyID, company.Name); err != nil {
		return fmt.Errorf("failed to unclaim company: %w", err)
	}

	fmt.Printf("Released %s (company %d)\n", company.Name, c.CompanyID)
	return nil
}
