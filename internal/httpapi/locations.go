package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cpo/internal/models"
)

// GetEVSE serves one EVSE of a stored location.
func (s *Server) GetEVSE(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}
	uid := chi.URLParam(r, "evse_uid")
	evse, found := loc.EVSE(uid)
	if !found {
		s.writeError(w, r, fmt.Errorf("evse %s of location %s: %w", uid, loc.ID, models.ErrNotFound))
		return
	}
	setLastModified(w, evse.LastUpdated)
	writeSuccess(w, http.StatusOK, evse)
}

// GetConnector serves one connector of an EVSE of a stored location.
func (s *Server) GetConnector(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(w, r)
	if !ok {
		return
	}
	uid, cid := chi.URLParam(r, "evse_uid"), chi.URLParam(r, "connector_id")
	evse, found := loc.EVSE(uid)
	if !found {
		s.writeError(w, r, fmt.Errorf("evse %s of location %s: %w", uid, loc.ID, models.ErrNotFound))
		return
	}
	conn, found := evse.Connector(cid)
	if !found {
		s.writeError(w, r, fmt.Errorf("connector %s of evse %s: %w", cid, uid, models.ErrNotFound))
		return
	}
	setLastModified(w, conn.LastUpdated)
	writeSuccess(w, http.StatusOK, conn)
}

func (s *Server) location(w http.ResponseWriter, r *http.Request) (models.Location, bool) {
	id := models.NewIdentity(s.Self.CountryCode, s.Self.PartyID, chi.URLParam(r, "location_id"))
	v, err := s.Locations.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return models.Location{}, false
	}
	return v.Item, true
}
