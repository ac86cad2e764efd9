package server

import (
	"errors"
	"net/http"

	"github.com/wolfeidau/leadpool/internal/api"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/models"
	"github.com/wolfeidau/leadpool/internal/store"
)

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	leads, err := s.store.ListLeads(r.Context(), user.ID)
	if err != nil {
		s.internalError(w, r, "Failed to list leads", err)
		return
	}

	resp := api.LeadList{Leads: make([]api.Lead, 0, len(leads))}
	for _, l := range leads {
		resp.Leads = append(resp.Leads, api.LeadFromModel(l))
	}

	httpmiddleware.WriteJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	leadID, ok := pathID(w, r)
	if !ok {
		return
	}

	lead, err := s.store.GetLead(r.Context(), user.ID, leadID)
	if err != nil {
		s.writeLeadError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, r, http.StatusOK, api.LeadFromModel(lead))
}

func (s *Server) updateLead(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	leadID, ok := pathID(w, r)
	if !ok {
		return
	}

	var update api.LeadUpdate
	if !decodeOptionalJSON(w, r, &update) {
		return
	}
	if update.PipelineStage != nil && !models.ValidPipelineStage(*update.PipelineStage) {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, api.CodeInvalidRequest, "unknown pipeline_stage")
		return
	}
	if update.PreferredContact != nil && !models.ValidContactMethod(*update.PreferredContact) {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, api.CodeInvalidRequest, "preferred_contact must be phone or email")
		return
	}

	lead, err := s.store.UpdateLeadWorkflow(r.Context(), user.ID, leadID, update.Workflow())
	if err != nil {
		s.writeLeadError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, r, http.StatusOK, api.LeadFromModel(lead))
}

func (s *Server) writeLeadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrLeadNotFound) {
		httpmiddleware.WriteError(w, r, http.StatusNotFound, api.CodeNotFound, "lead not found")
		return
	}
	s.internalError(w, r, "Lead operation failed", err)
}
