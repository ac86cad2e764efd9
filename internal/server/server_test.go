package server

import (
	"bufio"
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/auth"
	"github.com/wolfeidau/leadpool/internal/claim"
	"github.com/wolfeidau/leadpool/internal/events"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/notify"
	"github.com/wolfeidau/leadpool/internal/ratelimit"
	memorystore "github.com/wolfeidau/leadpool/internal/store/memory"
)

var (
	alice = models.User{ID: 1, Username: "alice"}
	bob   = models.User{ID: 2, Username: "bob"}
)

type testEnv struct {
	url    string
	store  *memorystore.Store
	bus    *events.Bus
	tokens map[int64]string
}

func setupServer(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	privDER, err := x509.MarshalECPrivateKey(privateKey)
	require.NoError(t, err)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}))

	pubDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	verifier, err := auth.NewVerifierFromPEM(pubPEM)
	require.NoError(t, err)

	tokens := make(map[int64]string)
	for _, u := range []models.User{alice, bob} {
		tokens[u.ID], err = auth.IssueToken(privPEM, u, time.Hour)
		require.NoError(t, err)
	}

	st := memorystore.NewStore()
	bus := events.NewBus()

	cfg := Config{
		Store:       st,
		Coordinator: claim.NewCoordinator(st, bus),
		Stream:      notify.NewHandler(bus, notify.Config{}),
		Verifier:    verifier,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := NewServer(cfg)

	ts := httptest.NewServer(srv.Handler(zerolog.Nop()))
	t.Cleanup(func() {
		bus.Close()
		ts.Close()
	})

	return &testEnv{url: ts.URL, store: st, bus: bus, tokens: tokens}
}

func (e *testEnv) seed(t *testing.T, names ...string) []*models.Company {
	t.Helper()
	var out []*models.Company
	for _, name := range names {
		c := &models.Company{
			Name:     name,
			Contacts: []string{"Contact at " + name},
			Phones:   []models.PhoneEntry{{Phone: "+1 555 0100", Sources: []string{"https://example.test"}}},
		}
		require.NoError(t, e.store.CreateCompany(context.Background(), c))
		out = append(out, c)
	}
	return out
}

func (e *testEnv) do(t *testing.T, user models.User, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.url+path, reader)
	require.NoError(t, err)
	if user.ID != 0 {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user.ID])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) openStream(t *testing.T, ctx context.Context, user models.User) <-chan notify.Message {
	t.Helper()

	// token in the query string, as a browser EventSource would send it
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url+"/api/events?access_token="+e.tokens[user.ID], nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	messages := make(chan notify.Message, 16)
	go func() {
		defer close(messages)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var msg notify.Message
			if json.Unmarshal([]byte(data), &msg) == nil {
				messages <- msg
			}
		}
	}()

	return messages
}

func nextMessage(t *testing.T, messages <-chan notify.Message) notify.Message {
	t.Helper()
	select {
	case msg, ok := <-messages:
		require.True(t, ok, "stream ended")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return notify.Message{}
	}
}

// TestClaimNotificationScenario walks through a claim, unclaim and re-claim of company 42
// while a second user watches the notification stream.
func TestClaimNotificationScenario(t *testing.T) {
	env := setupServer(t)

	names := make([]string, 42)
	for i := range names {
		names[i] = fmt.Sprintf("Filler %d", i+1)
	}
	names[41] = "Acme Co"
	companies := env.seed(t, names...)
	acme := companies[41]
	require.Equal(t, int64(42), acme.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bobStream := env.openStream(t, ctx, bob)
	connected := nextMessage(t, bobStream)
	require.Equal(t, notify.MessageConnected, connected.Type)
	require.Equal(t, bob.ID, connected.UserID)
	require.NotEmpty(t, connected.ConnectionID)

	// alice claims
	var first api.ClaimResponse
	status := env.do(t, alice, http.MethodPost, "/api/companies/42/claim", api.ClaimRequest{
		CompanyName: "Acme Co",
		Snapshot:    models.SnapshotOf(acme),
	}, &first)
	require.Equal(t, http.StatusCreated, status)
	require.NotZero(t, first.LeadID)

	msg := nextMessage(t, bobStream)
	require.Equal(t, notify.MessageCompanyClaimed, msg.Type)
	require.Equal(t, int64(42), msg.CompanyID)
	require.Equal(t, "Acme Co", msg.CompanyName)
	require.Equal(t, "alice", msg.ClaimedByUsername)
	require.Equal(t, alice.ID, msg.ClaimedByUserID)

	// bob cannot take it or release it
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusConflict, env.do(t, bob, http.MethodPost, "/api/companies/42/claim", nil, &errResp))
	require.Equal(t, api.CodeAlreadyClaimedByOther, errResp.Error)

	require.Equal(t, http.StatusForbidden, env.do(t, bob, http.MethodPost, "/api/companies/42/unclaim", nil, &errResp))
	require.Equal(t, api.CodeNotOwner, errResp.Error)

	// alice claiming twice is a conflict with herself
	require.Equal(t, http.StatusConflict, env.do(t, alice, http.MethodPost, "/api/companies/42/claim", nil, &errResp))
	require.Equal(t, api.CodeAlreadyClaimedBySelf, errResp.Error)

	// alice unclaims
	var unclaimed api.UnclaimResponse
	require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodPost, "/api/companies/42/unclaim",
		api.UnclaimRequest{CompanyName: "Acme Co"}, &unclaimed))
	require.True(t, unclaimed.OK)

	msg = nextMessage(t, bobStream)
	require.Equal(t, notify.MessageCompanyUnclaimed, msg.Type)
	require.Equal(t, int64(42), msg.CompanyID)
	require.Equal(t, "alice", msg.UnclaimedByUsername)

	// alice re-claims and gets a fresh lead
	var second api.ClaimResponse
	require.Equal(t, http.StatusCreated, env.do(t, alice, http.MethodPost, "/api/companies/42/claim", nil, &second))
	require.NotEqual(t, first.LeadID, second.LeadID)

	msg = nextMessage(t, bobStream)
	require.Equal(t, notify.MessageCompanyClaimed, msg.Type)
}

func TestHealth(t *testing.T) {
	env := setupServer(t)

	resp, err := http.Get(env.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestUnauthenticated(t *testing.T) {
	env := setupServer(t)

	for _, path := range []string{"/api/companies", "/api/leads", "/api/events"} {
		var errResp api.ErrorResponse
		require.Equal(t, http.StatusUnauthorized, env.do(t, models.User{}, http.MethodGet, path, nil, &errResp), path)
		require.Equal(t, api.CodeUnauthenticated, errResp.Error)
	}
}

func TestClaimErrors(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "Acme Co")

	var errResp api.ErrorResponse
	require.Equal(t, http.StatusNotFound, env.do(t, alice, http.MethodPost, "/api/companies/999/claim", nil, &errResp))
	require.Equal(t, api.CodeNotFound, errResp.Error)

	require.Equal(t, http.StatusBadRequest, env.do(t, alice, http.MethodPost, "/api/companies/abc/claim", nil, &errResp))
	require.Equal(t, api.CodeInvalidRequest, errResp.Error)

	require.Equal(t, http.StatusNotFound, env.do(t, alice, http.MethodPost, "/api/companies/999/unclaim", nil, &errResp))
}

func TestListCompanies(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "A", "B", "C")

	require.Equal(t, http.StatusCreated, env.do(t, alice, http.MethodPost, "/api/companies/2/claim", nil, nil))

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "all", query: "", expected: []string{"A", "B", "C"}},
		{name: "claimed", query: "?claimed=true", expected: []string{"B"}},
		{name: "unclaimed", query: "?claimed=false", expected: []string{"A", "C"}},
		{name: "mine", query: "?mine=true", expected: []string{"B"}},
		{name: "page", query: "?limit=1&offset=1", expected: []string{"B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list api.CompanyList
			require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodGet, "/api/companies"+tt.query, nil, &list))

			var names []string
			for _, c := range list.Companies {
				names = append(names, c.Name)
			}
			require.Equal(t, tt.expected, names)
		})
	}

	var errResp api.ErrorResponse
	require.Equal(t, http.StatusBadRequest, env.do(t, alice, http.MethodGet, "/api/companies?claimed=maybe", nil, &errResp))
}

func TestGetCompany_revalidation(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "Acme Co")

	req, err := http.NewRequest(http.MethodGet, env.url+"/api/companies/1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.tokens[alice.ID])

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)
	require.Equal(t, "private, no-cache", resp.Header.Get("Cache-Control"))

	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotModified, resp.StatusCode)

	// a claim changes the document, so the old validator no longer matches
	require.Equal(t, http.StatusCreated, env.do(t, alice, http.MethodPost, "/api/companies/1/claim", nil, nil))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var company api.Company
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&company))
	require.True(t, company.Claimed)
	require.Equal(t, alice.ID, *company.OwnerID)
}

func TestLeads(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "Acme Co")

	var claimed api.ClaimResponse
	require.Equal(t, http.StatusCreated, env.do(t, alice, http.MethodPost, "/api/companies/1/claim", nil, &claimed))

	var leads api.LeadList
	require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodGet, "/api/leads", nil, &leads))
	require.Len(t, leads.Leads, 1)
	require.Equal(t, "Acme Co", leads.Leads[0].Name)
	require.Equal(t, []string{"Contact at Acme Co"}, leads.Leads[0].Contacts)
	require.Equal(t, models.PipelineStageNew, leads.Leads[0].PipelineStage)

	require.Equal(t, http.StatusOK, env.do(t, bob, http.MethodGet, "/api/leads", nil, &leads))
	require.Empty(t, leads.Leads)

	path := fmt.Sprintf("/api/leads/%d", claimed.LeadID)
	stage := models.PipelineStageContacted
	method := models.ContactMethodEmail

	var lead api.Lead
	require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodPatch, path,
		api.LeadUpdate{PipelineStage: &stage, PreferredContact: &method}, &lead))
	require.Equal(t, stage, lead.PipelineStage)
	require.Equal(t, method, lead.PreferredContact)

	require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodGet, path, nil, &lead))
	require.Equal(t, stage, lead.PipelineStage)

	bad := "archived"
	var errResp api.ErrorResponse
	require.Equal(t, http.StatusBadRequest, env.do(t, alice, http.MethodPatch, path, api.LeadUpdate{PipelineStage: &bad}, &errResp))
	require.Equal(t, http.StatusNotFound, env.do(t, bob, http.MethodPatch, path, api.LeadUpdate{PipelineStage: &stage}, &errResp))
	require.Equal(t, http.StatusNotFound, env.do(t, bob, http.MethodGet, path, nil, &errResp))
}

func TestClaimRateLimited(t *testing.T) {
	env := setupServer(t, func(cfg *Config) {
		cfg.ClaimLimiter = ratelimit.New(0.001, 2, time.Minute)
	})
	companies := env.seed(t, "Acme Co", "Globex", "Initech")

	path := func(c *models.Company) string { return fmt.Sprintf("/api/companies/%d/claim", c.ID) }

	require.Equal(t, http.StatusCreated, env.do(t, alice, http.MethodPost, path(companies[0]), nil, nil))
	require.Equal(t, http.StatusCreated, env.do(t, alice, http.MethodPost, path(companies[1]), nil, nil))

	var errResp api.ErrorResponse
	require.Equal(t, http.StatusTooManyRequests, env.do(t, alice, http.MethodPost, path(companies[2]), nil, &errResp))
	require.Equal(t, api.CodeRateLimited, errResp.Error)

	// The company stays available and other users have their own bucket
	require.Equal(t, http.StatusCreated, env.do(t, bob, http.MethodPost, path(companies[2]), nil, nil))

	// Reads are not limited
	require.Equal(t, http.StatusOK, env.do(t, alice, http.MethodGet, "/api/companies", nil, nil))
}
