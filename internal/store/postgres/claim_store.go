package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
)

// ClaimStore implements store.ClaimStore using PostgreSQL transactions.
//
// Transactions run at READ COMMITTED. Mutual exclusion between concurrent claims of the
// same company comes from LockCompany's SELECT ... FOR UPDATE: the second claimant blocks
// on the row lock and re-reads the committed owner once the first transaction ends.
type ClaimStore struct {
	pool *pgxpool.Pool
}

// NewClaimStore creates a new PostgreSQL-backed claim store.
func NewClaimStore(pool *pgxpool.Pool) *ClaimStore {
	return &ClaimStore{
		pool: pool,
	}
}

// WithinTx runs fn inside a transaction, committing only when fn returns nil.
func (s *ClaimStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.ClaimTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	if err := fn(ctx, &claimTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapPostgresError(err))
	}

	return nil
}

// claimTx implements store.ClaimTx over a pgx transaction.
type claimTx struct {
	tx pgx.Tx
}

func (t *claimTx) LeadExists(ctx context.Context, ownerID, companyID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM leads WHERE owner_id = $1 AND company_id = $2
		)
	`, ownerID, companyID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check lead: %w", mapPostgresError(err))
	}
	return exists, nil
}

func (t *claimTx) LockCompany(ctx context.Context, companyID int64) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1 FOR UPDATE`

	company, err := scanCompany(t.tx.QueryRow(ctx, query, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to lock company: %w", mapPostgresError(err))
	}

	return company, nil
}

func (t *claimTx) CreateLead(ctx context.Context, lead *models.Lead) (int64, error) {
	cols, err := encodeContacts(lead.Contacts, lead.DealURLs, lead.Phones, lead.Emails)
	if err != nil {
		return 0, err
	}

	stage := lead.PipelineStage
	if stage == "" {
		stage = models.PipelineStageNew
	}

	var leadID int64
	err = t.tx.QueryRow(ctx, `
		INSERT INTO leads (owner_id, company_id, name, contacts, deal_urls, phones, emails, pipeline_stage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		lead.OwnerID,
		lead.CompanyID,
		lead.Name,
		cols.contacts,
		cols.dealURLs,
		cols.phones,
		cols.emails,
		stage,
	).Scan(&leadID)
	if err != nil {
		mapped := mapPostgresError(err)
		if errors.Is(mapped, store.ErrLeadExists) || errors.Is(mapped, store.ErrCompanyNotFound) {
			return 0, mapped
		}
		return 0, fmt.Errorf("failed to create lead: %w", mapped)
	}

	return leadID, nil
}

func (t *claimTx) DeleteLead(ctx context.Context, ownerID, companyID int64) (int64, error) {
	result, err := t.tx.Exec(ctx, `DELETE FROM leads WHERE owner_id = $1 AND company_id = $2`, ownerID, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete lead: %w", mapPostgresError(err))
	}
	return result.RowsAffected(), nil
}

func (t *claimTx) SetOwner(ctx context.Context, companyID int64, ownerID *int64) (*int64, error) {
	// The CTE reads the pre-update owner under the same row lock.
	query := `
		WITH previous AS (
			SELECT id, owner_id FROM companies WHERE id = $1 FOR UPDATE
		)
		UPDATE companies c
		SET owner_id = $2
		FROM previous
		WHERE c.id = previous.id
		RETURNING previous.owner_id
	`

	var previous *int64
	err := t.tx.QueryRow(ctx, query, companyID, ownerID).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to set owner: %w", mapPostgresError(err))
	}

	return previous, nil
}
