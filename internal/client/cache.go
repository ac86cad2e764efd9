package client

import (
	"sort"
	"sync"

	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/notify"
)

// CachedCompany is a company as the local client currently believes it to be.
type CachedCompany struct {
	api.Company
	// ClaimedBy is the username from the most recent claim notification. It is empty for
	// companies loaded as claimed, since listings carry only the owner id.
	ClaimedBy string
}

func (c *CachedCompany) clone() CachedCompany {
	out := *c
	if c.OwnerID != nil {
		owner := *c.OwnerID
		out.OwnerID = &owner
	}
	return out
}

// ownedBy reports whether the user with id or username holds the claim.
func (c *CachedCompany) ownedBy(userID int64, username string) bool {
	if !c.Claimed {
		return false
	}
	if c.OwnerID != nil {
		return *c.OwnerID == userID
	}
	return c.ClaimedBy != "" && c.ClaimedBy == username
}

// CompanyCache is the client's view of the company pool, kept current by applying
// notifications instead of re-fetching.
type CompanyCache struct {
	mu        sync.RWMutex
	companies map[int64]*CachedCompany
}

func NewCompanyCache() *CompanyCache {
	return &CompanyCache{companies: make(map[int64]*CachedCompany)}
}

// Load replaces the cache contents with a fresh listing.
func (c *CompanyCache) Load(companies []api.Company) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.companies = make(map[int64]*CachedCompany, len(companies))
	for _, company := range companies {
		c.companies[company.ID] = &CachedCompany{Company: company}
	}
}

// Apply updates the cache from a notification. It returns true if a cached company
// changed. Companies the cache has never seen are ignored.
func (c *CompanyCache) Apply(msg notify.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	company, ok := c.companies[msg.CompanyID]
	if !ok {
		return false
	}

	switch msg.Type {
	case notify.MessageCompanyClaimed:
		company.Claimed = true
		company.ClaimedBy = msg.ClaimedByUsername
		company.OwnerID = nil
		if msg.ClaimedByUserID != 0 {
			owner := msg.ClaimedByUserID
			company.OwnerID = &owner
		}
	case notify.MessageCompanyUnclaimed:
		company.Claimed = false
		company.ClaimedBy = ""
		company.OwnerID = nil
	default:
		return false
	}
	return true
}

// Get returns a copy of a cached company.
func (c *CompanyCache) Get(companyID int64) (CachedCompany, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	company, ok := c.companies[companyID]
	if !ok {
		return CachedCompany{}, false
	}
	return company.clone(), true
}

// Available returns the companies the user may still act on: unclaimed ones plus those
// the user claimed, ordered by id. Ownership is matched on the owner id when known and
// on the claimant's username otherwise.
func (c *CompanyCache) Available(userID int64, username string) []CachedCompany {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []CachedCompany
	for _, company := range c.companies {
		if !company.Claimed || company.ownedBy(userID, username) {
			out = append(out, company.clone())
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *CompanyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.companies)
}
