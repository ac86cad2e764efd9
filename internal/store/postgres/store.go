package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store combines the PostgreSQL-backed stores over one shared connection pool.
type Store struct {
	*CompanyStore
	*LeadStore
	*ClaimStore
}

// NewStore creates all PostgreSQL stores over the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		CompanyStore: NewCompanyStore(pool),
		LeadStore:    NewLeadStore(pool),
		ClaimStore:   NewClaimStore(pool),
	}
}

// contactColumns holds the JSONB encoded contact details shared by companies and leads.
type contactColumns struct {
	contacts []byte
	dealURLs []byte
	phones   []byte
	emails   []byte
}

func encodeContacts(contacts, dealURLs []string, phones []models.PhoneEntry, emails []models.EmailEntry) (*contactColumns, error) {
	var (
		cols contactColumns
		err  error
	)

	if cols.contacts, err = marshalList(contacts); err != nil {
		return nil, fmt.Errorf("failed to marshal contacts: %w", err)
	}
	if cols.dealURLs, err = marshalList(dealURLs); err != nil {
		return nil, fmt.Errorf("failed to marshal deal_urls: %w", err)
	}
	if cols.phones, err = marshalList(phones); err != nil {
		return nil, fmt.Errorf("failed to marshal phones: %w", err)
	}
	if cols.emails, err = marshalList(emails); err != nil {
		return nil, fmt.Errorf("failed to marshal emails: %w", err)
	}

	return &cols, nil
}

func (c *contactColumns) decode(contacts, dealURLs *[]string, phones *[]models.PhoneEntry, emails *[]models.EmailEntry) error {
	if err := json.Unmarshal(c.contacts, contacts); err != nil {
		return fmt.Errorf("failed to unmarshal contacts: %w", err)
	}
	if err := json.Unmarshal(c.dealURLs, dealURLs); err != nil {
		return fmt.Errorf("failed to unmarshal deal_urls: %w", err)
	}
	if err := json.Unmarshal(c.phones, phones); err != nil {
		return fmt.Errorf("failed to unmarshal phones: %w", err)
	}
	if err := json.Unmarshal(c.emails, emails); err != nil {
		return fmt.Errorf("failed to unmarshal emails: %w", err)
	}
	return nil
}

// marshalList encodes a nil slice as an empty JSON array to satisfy NOT NULL columns.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
