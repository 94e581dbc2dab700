package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"cpo/internal/models"
)

// DeletePartyTokens removes every token issued by the party in the path. Like single deletes it
// succeeds when there is nothing to remove.
func (s *Server) DeletePartyTokens(w http.ResponseWriter, r *http.Request) {
	owner := models.NewPartyIdentity(chi.URLParam(r, "country_code"), chi.URLParam(r, "party_id"), models.RoleEMSP)
	n, err := s.Tokens.DeleteOwnedBy(r.Context(), owner)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger().Info("tokens removed", zap.Stringer("owner", owner), zap.Stringer("caller", callerParty(r)),
		zap.Int("count", n))
	writeSuccess(w, http.StatusOK, nil)
}
