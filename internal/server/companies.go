package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/leadpool/internal/api"
	"github.com/wolfeidau/leadpool/internal/auth"
	httpmiddleware "github.com/wolfeidau/leadpool/internal/http"
	"github.com/wolfeidau/leadpool/internal/store"
	"github.com/wolfeidau/leadpool/internal/util"
)

func (s *Server) listCompanies(w http.ResponseWriter, r *http.Request) {
	filter, err := parseCompanyFilter(r)
	if err != nil {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
		return
	}

	companies, err := s.store.ListCompanies(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, "Failed to list companies", err)
		return
	}

	resp := api.CompanyList{Companies: make([]api.Company, 0, len(companies))}
	for _, c := range companies {
		resp.Companies = append(resp.Companies, api.CompanyFromModel(c))
	}

	writeRevalidated(w, r, resp)
}

func (s *Server) getCompany(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r)
	if !ok {
		return
	}

	company, err := s.store.GetCompany(r.Context(), companyID)
	if err != nil {
		if errors.Is(err, store.ErrCompanyNotFound) {
			httpmiddleware.WriteError(w, r, http.StatusNotFound, api.CodeNotFound, "company not found")
			return
		}
		s.internalError(w, r, "Failed to get company", err)
		return
	}

	writeRevalidated(w, r, api.CompanyFromModel(company))
}

func parseCompanyFilter(r *http.Request) (store.CompanyFilter, error) {
	q := r.URL.Query()
	filter := store.CompanyFilter{Limit: defaultPageSize}

	if v := q.Get("claimed"); v != "" {
		claimed, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("claimed must be true or false")
		}
		filter.Claimed = &claimed
	}

	if v := q.Get("mine"); v != "" {
		mine, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("mine must be true or false")
		}
		if mine {
			user, _ := auth.UserFromContext(r.Context())
			filter.OwnerID = user.ID
		}
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return filter, errors.New("limit must be a number")
		}
		filter.Limit = util.ClampInt(limit, 1, maxPageSize)
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return filter, errors.New("offset must be a non-negative number")
		}
		filter.Offset = offset
	}

	return filter, nil
}

// writeRevalidated writes a JSON document with an ETag and asks caches to revalidate on
// every use. Claims change ownership at any moment, so a cached listing is only served
// after the server confirms it with 304 Not Modified.
func writeRevalidated(w http.ResponseWriter, r *http.Request, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, api.CodeInternal, "internal error")
		return
	}

	sum := sha256.Sum256(buf.Bytes())
	etag := `"` + base58.Encode(sum[:16]) + `"`

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	w.Header().Set("Vary", "Authorization")

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, api.CodeInvalidRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Msg(msg)
	httpmiddleware.WriteError(w, r, http.StatusInternalServerError, api.CodeInternal, "internal error")
}
