package client

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/notify"
)

func TestCompanyCache_Apply(t *testing.T) {
	cache := NewCompanyCache()
	cache.Load([]api.Company{
		{ID: 1, Name: "Acme Co"},
		{ID: 2, Name: "Beta"},
		{ID: 3, Name: "Gamma"},
	})
	require.Equal(t, 3, cache.Len())

	require.True(t, cache.Apply(notify.Message{Type: notify.MessageCompanyClaimed, CompanyID: 1, ClaimedByUsername: "alice", ClaimedByUserID: 1}))
	require.True(t, cache.Apply(notify.Message{Type: notify.MessageCompanyClaimed, CompanyID: 2, ClaimedByUsername: "bob", ClaimedByUserID: 2}))

	company, ok := cache.Get(1)
	require.True(t, ok)
	require.True(t, company.Claimed)
	require.Equal(t, "alice", company.ClaimedBy)
	require.NotNil(t, company.OwnerID)
	require.Equal(t, int64(1), *company.OwnerID)

	ids := func(companies []CachedCompany) []int64 {
		var out []int64
		for _, c := range companies {
			out = append(out, c.ID)
		}
		return out
	}

	// the claimant still sees their company, everyone else does not
	require.Equal(t, []int64{1, 3}, ids(cache.Available(1, "alice")))
	require.Equal(t, []int64{2, 3}, ids(cache.Available(2, "bob")))

	require.True(t, cache.Apply(notify.Message{Type: notify.MessageCompanyUnclaimed, CompanyID: 1, UnclaimedByUsername: "alice"}))
	require.Equal(t, []int64{1, 3}, ids(cache.Available(2, "bob")))

	company, ok = cache.Get(1)
	require.True(t, ok)
	require.False(t, company.Claimed)
	require.Nil(t, company.OwnerID)
}

func TestCompanyCache_ApplyWithoutUserID(t *testing.T) {
	cache := NewCompanyCache()
	cache.Load([]api.Company{{ID: 1}})

	require.True(t, cache.Apply(notify.Message{Type: notify.MessageCompanyClaimed, CompanyID: 1, ClaimedByUsername: "alice"}))

	company, ok := cache.Get(1)
	require.True(t, ok)
	require.Nil(t, company.OwnerID)
	require.Len(t, cache.Available(1, "alice"), 1)
	require.Empty(t, cache.Available(2, "bob"))
}

func TestCompanyCache_ApplyIgnoresUnknown(t *testing.T) {
	cache := NewCompanyCache()
	cache.Load([]api.Company{{ID: 1}})

	require.False(t, cache.Apply(notify.Message{Type: notify.MessageCompanyClaimed, CompanyID: 99}))
	require.False(t, cache.Apply(notify.Message{Type: notify.MessageHeartbeat, CompanyID: 1}))

	_, ok := cache.Get(99)
	require.False(t, ok)
}

func TestCompanyCache_LoadedClaimAvailableToOwner(t *testing.T) {
	owner := int64(1)
	cache := NewCompanyCache()
	cache.Load([]api.Company{
		{ID: 1, Claimed: true, OwnerID: &owner},
		{ID: 2},
	})

	require.Len(t, cache.Available(1, "alice"), 2, "owner keeps their claimed company")
	require.Len(t, cache.Available(2, "bob"), 1)
	require.Len(t, cache.Available(0, ""), 1)

	// returned copies do not share the owner pointer
	available := cache.Available(1, "alice")
	*available[0].OwnerID = 99
	company, _ := cache.Get(1)
	require.Equal(t, int64(1), *company.OwnerID)
}
