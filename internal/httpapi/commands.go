package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cpo/internal/models"
)

// PostCommand hands a command to the dispatcher. The envelope succeeds whatever the command
// outcome; the outcome travels in the payload.
func (s *Server) PostCommand(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeBody(r, nil)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t := models.CommandType(chi.URLParam(r, "command"))
	resp, err := s.Commands.Dispatch(r.Context(), callerParty(r), t, raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}
