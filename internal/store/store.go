package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/leadpool/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrCompanyNotFound = errors.New("company not found")
	ErrLeadNotFound    = errors.New("lead not found")
	ErrLeadExists      = errors.New("lead already exists for owner and company")
)

// CompanyFilter narrows a company listing.
type CompanyFilter struct {
	// Claimed filters on ownership when non-nil.
	Claimed *bool
	// OwnerID restricts the listing to companies owned by this user when non-zero.
	OwnerID int64
	Limit   int
	Offset  int
}

// CompanyStore provides read access to the company pool.
// Ownership is never written through this interface, only through ClaimTx.
type CompanyStore interface {
	// CreateCompany inserts an unclaimed company and sets its ID.
	// This is used by seeding and ingestion, never by the claim path.
	CreateCompany(ctx context.Context, company *models.Company) error

	// GetCompany returns ErrCompanyNotFound if the company doesn't exist.
	GetCompany(ctx context.Context, companyID int64) (*models.Company, error)

	ListCompanies(ctx context.Context, filter CompanyFilter) ([]*models.Company, error)
}

// LeadStore provides access to lead projections for downstream CRM features.
type LeadStore interface {
	// GetLead returns ErrLeadNotFound if the lead doesn't exist or belongs to another user.
	GetLead(ctx context.Context, ownerID, leadID int64) (*models.Lead, error)

	ListLeads(ctx context.Context, ownerID int64) ([]*models.Lead, error)

	// UpdateLeadWorkflow changes workflow fields only. The snapshot taken at claim time
	// is immutable.
	UpdateLeadWorkflow(ctx context.Context, ownerID, leadID int64, update models.LeadWorkflow) (*models.Lead, error)
}

// ClaimTx is the set of operations the claim coordinator performs inside one transaction.
// Nothing done through a ClaimTx is visible to other transactions until the enclosing
// ClaimStore.WithinTx returns nil.
type ClaimTx interface {
	// LeadExists reports whether the owner already has a lead for the company.
	LeadExists(ctx context.Context, ownerID, companyID int64) (bool, error)

	// LockCompany reads the company and holds a row lock on it until the transaction ends.
	// Returns ErrCompanyNotFound if the company doesn't exist.
	LockCompany(ctx context.Context, companyID int64) (*models.Company, error)

	// CreateLead inserts the lead and returns its new ID.
	// Returns ErrLeadExists if the owner already has a lead for the company.
	CreateLead(ctx context.Context, lead *models.Lead) (int64, error)

	// DeleteLead removes the owner's lead for the company and returns the rows affected.
	DeleteLead(ctx context.Context, ownerID, companyID int64) (int64, error)

	// SetOwner sets or clears the company owner and returns the previous owner.
	SetOwner(ctx context.Context, companyID int64, ownerID *int64) (*int64, error)
}

// ClaimStore runs claim and unclaim work atomically across the ownership column and
// the lead projection.
type ClaimStore interface {
	// WithinTx runs fn inside a transaction. The transaction commits when fn returns nil
	// and rolls back otherwise. The error returned by fn is returned unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx ClaimTx) error) error
}

// Store groups every store the service needs.
type Store interface {
	CompanyStore
	LeadStore
	ClaimStore
}
