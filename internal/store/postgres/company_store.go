package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
)

const companyColumns = `id, name, contacts, deal_urls, phones, emails, owner_id, created_at`

// CompanyStore implements store.CompanyStore using PostgreSQL.
type CompanyStore struct {
	pool *pgxpool.Pool
}

// NewCompanyStore creates a new PostgreSQL-backed company store.
// It shares the connection pool with other stores.
func NewCompanyStore(pool *pgxpool.Pool) *CompanyStore {
	return &CompanyStore{
		pool: pool,
	}
}

// CreateCompany inserts an unclaimed company and sets its ID and creation time.
func (s *CompanyStore) CreateCompany(ctx context.Context, company *models.Company) error {
	cols, err := encodeContacts(company.Contacts, company.DealURLs, company.Phones, company.Emails)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO companies (name, contacts, deal_urls, phones, emails)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = s.pool.QueryRow(ctx, query,
		company.Name,
		cols.contacts,
		cols.dealURLs,
		cols.phones,
		cols.emails,
	).Scan(&company.ID, &company.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", mapPostgresError(err))
	}
	company.OwnerID = nil

	log.Debug().
		Int64("company_id", company.ID).
		Str("name", company.Name).
		Msg("Created company")

	return nil
}

// GetCompany retrieves a company by ID.
func (s *CompanyStore) GetCompany(ctx context.Context, companyID int64) (*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`

	company, err := scanCompany(s.pool.QueryRow(ctx, query, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", mapPostgresError(err))
	}

	return company, nil
}

// ListCompanies returns companies matching the filter ordered by ID.
func (s *CompanyStore) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]*models.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies`

	var conditions []string
	var args []any

	if filter.Claimed != nil {
		if *filter.Claimed {
			conditions = append(conditions, "owner_id IS NOT NULL")
		} else {
			conditions = append(conditions, "owner_id IS NULL")
		}
	}
	if filter.OwnerID != 0 {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var companies []*models.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, company)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating companies: %w", mapPostgresError(err))
	}

	return companies, nil
}

func scanCompany(row pgx.Row) (*models.Company, error) {
	var (
		company models.Company
		cols    contactColumns
	)

	err := row.Scan(
		&company.ID,
		&company.Name,
		&cols.contacts,
		&cols.dealURLs,
		&cols.phones,
		&cols.emails,
		&company.OwnerID,
		&company.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := cols.decode(&company.Contacts, &company.DealURLs, &company.Phones, &company.Emails); err != nil {
		return nil, err
	}

	return &company, nil
}
