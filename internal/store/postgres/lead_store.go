package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
)

const leadColumns = `id, owner_id, company_id, name, contacts, deal_urls, phones, emails,
	pipeline_stage, notes, follow_up_date, preferred_contact, created_at`

// LeadStore implements store.LeadStore using PostgreSQL.
type LeadStore struct {
	pool *pgxpool.Pool
}

// NewLeadStore creates a new PostgreSQL-backed lead store.
func NewLeadStore(pool *pgxpool.Pool) *LeadStore {
	return &LeadStore{
		pool: pool,
	}
}

// GetLead retrieves one of the owner's leads by ID.
func (s *LeadStore) GetLead(ctx context.Context, ownerID, leadID int64) (*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND owner_id = $2`

	lead, err := scanLead(s.pool.QueryRow(ctx, query, leadID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to get lead: %w", mapPostgresError(err))
	}

	return lead, nil
}

// ListLeads returns the owner's leads, newest first.
func (s *LeadStore) ListLeads(ctx context.Context, ownerID int64) ([]*models.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, lead)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leads: %w", mapPostgresError(err))
	}

	return leads, nil
}

// UpdateLeadWorkflow updates the workflow fields of one of the owner's leads.
// NULL parameters keep the current column value.
func (s *LeadStore) UpdateLeadWorkflow(ctx context.Context, ownerID, leadID int64, update models.LeadWorkflow) (*models.Lead, error) {
	query := `
		UPDATE leads SET
			pipeline_stage    = COALESCE($3, pipeline_stage),
			notes             = COALESCE($4, notes),
			follow_up_date    = COALESCE($5, follow_up_date),
			preferred_contact = COALESCE($6, preferred_contact)
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + leadColumns

	lead, err := scanLead(s.pool.QueryRow(ctx, query,
		leadID,
		ownerID,
		update.PipelineStage,
		update.Notes,
		update.FollowUpDate,
		update.PreferredContact,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to update lead: %w", mapPostgresError(err))
	}

	log.Debug().
		Int64("lead_id", leadID).
		Str("pipeline_stage", lead.PipelineStage).
		Msg("Updated lead workflow")

	return lead, nil
}

func scanLead(row pgx.Row) (*models.Lead, error) {
	var (
		lead models.Lead
		cols contactColumns
	)

	err := row.Scan(
		&lead.ID,
		&lead.OwnerID,
		&lead.CompanyID,
		&lead.Name,
		&cols.contacts,
		&cols.dealURLs,
		&cols.phones,
		&cols.emails,
		&lead.PipelineStage,
		&lead.Notes,
		&lead.FollowUpDate,
		&lead.PreferredContact,
		&lead.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := cols.decode(&lead.Contacts, &lead.DealURLs, &lead.Phones, &lead.Emails); err != nil {
		return nil, err
	}

	return &lead, nil
}
