package models

import "time"

// PhoneEntry is a phone number along with the pages it was scraped from.
type PhoneEntry struct {
	Phone   string   `json:"phone" yaml:"phone"`
	Sources []string `json:"sources,omitempty" yaml:"sources"`
}

// EmailEntry is an email address along with the pages it was scraped from.
type EmailEntry struct {
	Email   string   `json:"email" yaml:"email"`
	Sources []string `json:"sources,omitempty" yaml:"sources"`
}

// Company is a scraped company record in the shared pool.
// OwnerID is nil while the company is unclaimed.
type Company struct {
	ID        int64
	Name      string
	Contacts  []string
	DealURLs  []string
	Phones    []PhoneEntry
	Emails    []EmailEntry
	OwnerID   *int64 // FK to users, nil when unclaimed
	CreatedAt time.Time
}

// IsClaimed returns true if a user currently owns the company.
func (c *Company) IsClaimed() bool {
	return c.OwnerID != nil
}

// IsOwnedBy returns true if the given user owns the company.
func (c *Company) IsOwnedBy(userID int64) bool {
	return c.OwnerID != nil && *c.OwnerID == userID
}

// Snapshot is the copy of company details taken into a lead when it is claimed.
type Snapshot struct {
	Contacts []string     `json:"contacts" yaml:"contacts"`
	DealURLs []string     `json:"deal_urls" yaml:"deal_urls"`
	Phones   []PhoneEntry `json:"phones" yaml:"phones"`
	Emails   []EmailEntry `json:"emails" yaml:"emails"`
}

// IsEmpty reports whether the snapshot carries no contact details at all.
func (s Snapshot) IsEmpty() bool {
	return len(s.Contacts) == 0 && len(s.DealURLs) == 0 && len(s.Phones) == 0 && len(s.Emails) == 0
}

// SnapshotOf copies the contact details of a company.
func SnapshotOf(c *Company) Snapshot {
	return Snapshot{
		Contacts: c.Contacts,
		DealURLs: c.DealURLs,
		Phones:   c.Phones,
		Emails:   c.Emails,
	}
}
