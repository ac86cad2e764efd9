package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
)

var _ store.Store = (*Store)(nil)

type leadKey struct {
	ownerID   int64
	companyID int64
}

// Store implements store.Store using in-memory storage.
// This implementation is for development and testing only - data is lost on restart.
//
// Transactions hold the write lock for their whole duration, so they are fully
// serialized and readers never observe a partially applied claim.
type Store struct {
	mu sync.RWMutex

	companies map[int64]*models.Company // company_id -> Company
	leads     map[int64]*models.Lead    // lead_id -> Lead
	leadIndex map[leadKey]int64         // (owner_id, company_id) -> lead_id

	nextCompanyID int64
	nextLeadID    int64
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		companies: make(map[int64]*models.Company),
		leads:     make(map[int64]*models.Lead),
		leadIndex: make(map[leadKey]int64),
	}
}

// CreateCompany adds an unclaimed company and assigns its ID.
func (s *Store) CreateCompany(ctx context.Context, company *models.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCompanyID++
	company.ID = s.nextCompanyID
	company.OwnerID = nil
	if company.CreatedAt.IsZero() {
		company.CreatedAt = time.Now()
	}

	s.companies[company.ID] = cloneCompany(company)

	return nil
}

// GetCompany retrieves a company by ID.
func (s *Store) GetCompany(ctx context.Context, companyID int64) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	company, exists := s.companies[companyID]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}

	return cloneCompany(company), nil
}

// ListCompanies returns companies ordered by ID.
func (s *Store) ListCompanies(ctx context.Context, filter store.CompanyFilter) ([]*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Company
	for _, company := range s.companies {
		if filter.Claimed != nil && company.IsClaimed() != *filter.Claimed {
			continue
		}
		if filter.OwnerID != 0 && !company.IsOwnedBy(filter.OwnerID) {
			continue
		}
		result = append(result, cloneCompany(company))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return paginate(result, filter.Offset, filter.Limit), nil
}

// GetLead retrieves one of the owner's leads by ID.
func (s *Store) GetLead(ctx context.Context, ownerID, leadID int64) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, exists := s.leads[leadID]
	if !exists || lead.OwnerID != ownerID {
		return nil, store.ErrLeadNotFound
	}

	return cloneLead(lead), nil
}

// ListLeads returns the owner's leads, newest first.
func (s *Store) ListLeads(ctx context.Context, ownerID int64) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Lead
	for _, lead := range s.leads {
		if lead.OwnerID == ownerID {
			result = append(result, cloneLead(lead))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID > result[j].ID
	})

	return result, nil
}

// UpdateLeadWorkflow updates the workflow fields of one of the owner's leads.
func (s *Store) UpdateLeadWorkflow(ctx context.Context, ownerID, leadID int64, update models.LeadWorkflow) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, exists := s.leads[leadID]
	if !exists || lead.OwnerID != ownerID {
		return nil, store.ErrLeadNotFound
	}

	if update.PipelineStage != nil {
		lead.PipelineStage = *update.PipelineStage
	}
	if update.Notes != nil {
		lead.Notes = *update.Notes
	}
	if update.FollowUpDate != nil {
		followUp := *update.FollowUpDate
		lead.FollowUpDate = &followUp
	}
	if update.PreferredContact != nil {
		lead.PreferredContact = *update.PreferredContact
	}

	return cloneLead(lead), nil
}

// WithinTx runs fn with exclusive access to the store. Every change made through the
// transaction is undone, newest first, if fn returns an error or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.ClaimTx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	if err = fn(ctx, tx); err != nil {
		return err
	}

	committed = true
	return nil
}

// memoryTx implements store.ClaimTx. The caller holds s.mu for its whole lifetime.
type memoryTx struct {
	s    *Store
	undo []func()
}

func (tx *memoryTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTx) LeadExists(ctx context.Context, ownerID, companyID int64) (bool, error) {
	_, exists := tx.s.leadIndex[leadKey{ownerID: ownerID, companyID: companyID}]
	return exists, nil
}

func (tx *memoryTx) LockCompany(ctx context.Context, companyID int64) (*models.Company, error) {
	company, exists := tx.s.companies[companyID]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}
	return cloneCompany(company), nil
}

func (tx *memoryTx) CreateLead(ctx context.Context, lead *models.Lead) (int64, error) {
	key := leadKey{ownerID: lead.OwnerID, companyID: lead.CompanyID}
	if _, exists := tx.s.leadIndex[key]; exists {
		return 0, store.ErrLeadExists
	}

	// IDs are not reused after a rollback, matching a database sequence.
	tx.s.nextLeadID++
	clone := cloneLead(lead)
	clone.ID = tx.s.nextLeadID
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	if clone.PipelineStage == "" {
		clone.PipelineStage = models.PipelineStageNew
	}

	tx.s.leads[clone.ID] = clone
	tx.s.leadIndex[key] = clone.ID

	tx.undo = append(tx.undo, func() {
		delete(tx.s.leads, clone.ID)
		delete(tx.s.leadIndex, key)
	})

	return clone.ID, nil
}

func (tx *memoryTx) DeleteLead(ctx context.Context, ownerID, companyID int64) (int64, error) {
	key := leadKey{ownerID: ownerID, companyID: companyID}
	leadID, exists := tx.s.leadIndex[key]
	if !exists {
		return 0, nil
	}

	lead := tx.s.leads[leadID]
	delete(tx.s.leads, leadID)
	delete(tx.s.leadIndex, key)

	tx.undo = append(tx.undo, func() {
		tx.s.leads[leadID] = lead
		tx.s.leadIndex[key] = leadID
	})

	return 1, nil
}

func (tx *memoryTx) SetOwner(ctx context.Context, companyID int64, ownerID *int64) (*int64, error) {
	company, exists := tx.s.companies[companyID]
	if !exists {
		return nil, store.ErrCompanyNotFound
	}

	previous := company.OwnerID
	company.OwnerID = cloneID(ownerID)

	tx.undo = append(tx.undo, func() {
		company.OwnerID = previous
	})

	return cloneID(previous), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneCompany(c *models.Company) *models.Company {
	clone := *c
	clone.Contacts = slices.Clone(c.Contacts)
	clone.DealURLs = slices.Clone(c.DealURLs)
	clone.Phones = clonePhones(c.Phones)
	clone.Emails = cloneEmails(c.Emails)
	clone.OwnerID = cloneID(c.OwnerID)
	return &clone
}

func cloneLead(l *models.Lead) *models.Lead {
	clone := *l
	clone.Contacts = slices.Clone(l.Contacts)
	clone.DealURLs = slices.Clone(l.DealURLs)
	clone.Phones = clonePhones(l.Phones)
	clone.Emails = cloneEmails(l.Emails)
	if l.FollowUpDate != nil {
		followUp := *l.FollowUpDate
		clone.FollowUpDate = &followUp
	}
	return &clone
}

func clonePhones(phones []models.PhoneEntry) []models.PhoneEntry {
	if phones == nil {
		return nil
	}
	out := make([]models.PhoneEntry, len(phones))
	for i, p := range phones {
		out[i] = models.PhoneEntry{Phone: p.Phone, Sources: slices.Clone(p.Sources)}
	}
	return out
}

func cloneEmails(emails []models.EmailEntry) []models.EmailEntry {
	if emails == nil {
		return nil
	}
	out := make([]models.EmailEntry, len(emails))
	for i, e := range emails {
		out[i] = models.EmailEntry{Email: e.Email, Sources: slices.Clone(e.Sources)}
	}
	return out
}
