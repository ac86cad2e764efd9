// Package api defines the JSON documents exchanged over the HTTP API. The server and the
// Go client both use these types.
package api

import (
	"time"

	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/models"
)

// Error codes returned in ErrorResponse.Error.
const (
	CodeUnauthenticated       = "unauthenticated"
	CodeInvalidRequest        = "invalid_request"
	CodeNotFound              = "not_found"
	CodeAlreadyClaimedByOther = "already_claimed_by_other"
	CodeAlreadyClaimedBySelf  = "already_claimed_by_self"
	CodeNotOwner              = "not_owner"
	CodeInternal              = "internal"
	CodeUnavailable           = "unavailable"
	CodeRateLimited           = "rate_limited"
)

// ErrorResponse is the body of every API error.
type ErrorResponse = httpmiddleware.ErrorResponse

type Company struct {
	ID        int64               `json:"id"`
	Name      string              `json:"name"`
	Contacts  []string            `json:"contacts"`
	DealURLs  []string            `json:"deal_urls"`
	Phones    []models.PhoneEntry `json:"phones"`
	Emails    []models.EmailEntry `json:"emails"`
	OwnerID   *int64              `json:"owner_id"`
	Claimed   bool                `json:"claimed"`
	CreatedAt time.Time           `json:"created_at"`
}

type CompanyList struct {
	Companies []Company `json:"companies"`
}

type Lead struct {
	ID               int64               `json:"id"`
	CompanyID        int64               `json:"company_id"`
	Name             string              `json:"name"`
	Contacts         []string            `json:"contacts"`
	DealURLs         []string            `json:"deal_urls"`
	Phones           []models.PhoneEntry `json:"phones"`
	Emails           []models.EmailEntry `json:"emails"`
	PipelineStage    string              `json:"pipeline_stage"`
	Notes            string              `json:"notes"`
	FollowUpDate     *time.Time          `json:"follow_up_date"`
	PreferredContact string              `json:"preferred_contact"`
	CreatedAt        time.Time           `json:"created_at"`
}

type LeadList struct {
	Leads []Lead `json:"leads"`
}

// LeadUpdate is a partial update; omitted fields are left unchanged.
type LeadUpdate struct {
	PipelineStage    *string    `json:"pipeline_stage,omitempty"`
	Notes            *string    `json:"notes,omitempty"`
	FollowUpDate     *time.Time `json:"follow_up_date,omitempty"`
	PreferredContact *string    `json:"preferred_contact,omitempty"`
}

// ClaimRequest carries the company details the claimant saw. All fields are optional.
type ClaimRequest struct {
	CompanyName string `json:"company_name,omitempty"`
	models.Snapshot
}

type ClaimResponse struct {
	LeadID int64 `json:"lead_id"`
}

type UnclaimRequest struct {
	CompanyName string `json:"company_name,omitempty"`
}

type UnclaimResponse struct {
	OK bool `json:"ok"`
}

// CompanyFromModel converts a stored company. Nil lists become empty lists.
func CompanyFromModel(c *models.Company) Company {
	return Company{
		ID:        c.ID,
		Name:      c.Name,
		Contacts:  nonNil(c.Contacts),
		DealURLs:  nonNil(c.DealURLs),
		Phones:    nonNil(c.Phones),
		Emails:    nonNil(c.Emails),
		OwnerID:   c.OwnerID,
		Claimed:   c.IsClaimed(),
		CreatedAt: c.CreatedAt,
	}
}

// LeadFromModel converts a stored lead. Nil lists become empty lists.
func LeadFromModel(l *models.Lead) Lead {
	return Lead{
		ID:               l.ID,
		CompanyID:        l.CompanyID,
		Name:             l.Name,
		Contacts:         nonNil(l.Contacts),
		DealURLs:         nonNil(l.DealURLs),
		Phones:           nonNil(l.Phones),
		Emails:           nonNil(l.Emails),
		PipelineStage:    l.PipelineStage,
		Notes:            l.Notes,
		FollowUpDate:     l.FollowUpDate,
		PreferredContact: l.PreferredContact,
		CreatedAt:        l.CreatedAt,
	}
}

// Workflow converts the update into the store's partial update.
func (u LeadUpdate) Workflow() models.LeadWorkflow {
	return models.LeadWorkflow{
		PipelineStage:    u.PipelineStage,
		Notes:            u.Notes,
		FollowUpDate:     u.FollowUpDate,
		PreferredContact: u.PreferredContact,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
