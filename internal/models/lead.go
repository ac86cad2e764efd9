package models

import "time"

// Pipeline stages a lead moves through once claimed.
const (
	PipelineStageNew       = "new"
	PipelineStageContacted = "contacted"
	PipelineStageQualified = "qualified"
	PipelineStageProposal  = "proposal"
	PipelineStageWon       = "won"
	PipelineStageLost      = "lost"
)

// Preferred contact methods for a lead. Empty means no preference.
const (
	ContactMethodPhone = "phone"
	ContactMethodEmail = "email"
)

// Lead is a user's working copy of a claimed company.
// Contact details are denormalized from the company at claim time.
type Lead struct {
	ID        int64
	OwnerID   int64 // FK to users
	CompanyID int64 // source company, not FK enforced
	Name      string
	Contacts  []string
	DealURLs  []string
	Phones    []PhoneEntry
	Emails    []EmailEntry

	// Workflow fields, written by CRM features after the claim.
	PipelineStage    string
	Notes            string
	FollowUpDate     *time.Time
	PreferredContact string

	CreatedAt time.Time
}

// LeadWorkflow holds the workflow fields a lead update may change.
// Nil fields are left untouched.
type LeadWorkflow struct {
	PipelineStage    *string
	Notes            *string
	FollowUpDate     *time.Time
	PreferredContact *string
}

// ValidPipelineStage reports whether stage is a known pipeline stage.
func ValidPipelineStage(stage string) bool {
	switch stage {
	case PipelineStageNew, PipelineStageContacted, PipelineStageQualified,
		PipelineStageProposal, PipelineStageWon, PipelineStageLost:
		return true
	}
	return false
}

// ValidContactMethod reports whether method is empty or a known contact method.
func ValidContactMethod(method string) bool {
	switch method {
	case "", ContactMethodPhone, ContactMethodEmail:
		return true
	}
	return false
}
