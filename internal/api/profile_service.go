package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/minhbui/trovia/internal/backend"
)

// ProfileService proxies profile, favorites and address lookups through the
// authenticated REST pipeline.
type ProfileService struct {
	adapter *backend.Adapter
}

// NewProfileService creates a new profile service.
func NewProfileService(adapter *backend.Adapter) *ProfileService {
	return &ProfileService{adapter: adapter}
}

// Routes registers the service's endpoints.
func (s *ProfileService) Routes(r chi.Router) {
	r.Get("/profile/{userID}", s.handleGetProfile)
	r.Get("/favorites", s.handleListFavorites)
	r.Put("/favorites/{roomID}", s.handleAddFavorite)
	r.Delete("/favorites/{roomID}", s.handleRemoveFavorite)
	r.Get("/address/provinces", s.handleProvinces)
	r.Get("/address/provinces/{provinceID}/districts", s.handleDistricts)
	r.Get("/address/districts/{districtID}/wards", s.handleWards)
}

func (s *ProfileService) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.adapter.Rest().GetProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *ProfileService) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 20
	}
	rooms, err := s.adapter.Rest().ListFavorites(r.Context(), page, size)
	if err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *ProfileService) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.adapter.Rest().AddFavorite(r.Context(), chi.URLParam(r, "roomID")); err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *ProfileService) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if err := s.adapter.Rest().RemoveFavorite(r.Context(), chi.URLParam(r, "roomID")); err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *ProfileService) handleProvinces(w http.ResponseWriter, r *http.Request) {
	provinces, err := s.adapter.Rest().Provinces(r.Context())
	if err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provinces)
}

func (s *ProfileService) handleDistricts(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "provinceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid province id")
		return
	}
	districts, err := s.adapter.Rest().Districts(r.Context(), id)
	if err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, districts)
}

func (s *ProfileService) handleWards(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "districtID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid district id")
		return
	}
	wards, err := s.adapter.Rest().Wards(r.Context(), id)
	if err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wards)
}
