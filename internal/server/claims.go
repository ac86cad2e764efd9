package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/auth"
	"github.com/wolfeidau/leadpool/internal/claim"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/models"
)

const maxBodyBytes = 1 << 20

func (s *Server) claimCompany(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	companyID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req api.ClaimRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	leadID, err := s.coordinator.Claim(r.Context(), claim.ClaimRequest{
		User:        user,
		CompanyID:   companyID,
		CompanyName: req.CompanyName,
		Snapshot:    req.Snapshot,
	})
	if err != nil {
		writeClaimError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, r, http.StatusCreated, api.ClaimResponse{LeadID: leadID})
}

func (s *Server) unclaimCompany(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	companyID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req api.UnclaimRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}

	err := s.coordinator.Unclaim(r.Context(), claim.UnclaimRequest{
		User:        user,
		CompanyID:   companyID,
		CompanyName: req.CompanyName,
	})
	if err != nil {
		writeClaimError(w, r, err)
		return
	}

	httpmiddleware.WriteJSON(w, r, http.StatusOK, api.UnclaimResponse{OK: true})
}

// writeClaimError maps coordinator errors onto HTTP statuses.
func writeClaimError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, claim.ErrNotFound):
		httpmiddleware.WriteError(w, r, http.StatusNotFound, api.CodeNotFound, err.Error())
	case errors.Is(err, claim.ErrAlreadyClaimedByOther):
		httpmiddleware.WriteError(w, r, http.StatusConflict, api.CodeAlreadyClaimedByOther, err.Error())
	case errors.Is(err, claim.ErrAlreadyClaimedBySelf):
		httpmiddleware.WriteError(w, r, http.StatusConflict, api.CodeAlreadyClaimedBySelf, err.Error())
	case errors.Is(err, claim.ErrNotOwner):
		httpmiddleware.WriteError(w, r, http.StatusForbidden, api.CodeNotOwner, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Claim operation failed")
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, api.CodeInternal, "claim could not be completed, try again")
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (user models.User, ok bool) {
	user, ok = auth.UserFromContext(r.Context())
	if !ok {
		httpmiddleware.WriteError(w, r, http.StatusUnauthorized, api.CodeUnauthenticated, "authentication required")
	}
	return user, ok
}

// decodeOptionalJSON decodes the request body into v. An empty body leaves v untouched.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, api.CodeInvalidRequest, "malformed JSON body")
		return false
	}
	return true
}
