package httpapi

import (
	"net/http"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

func (s *Server) ListVersions(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, []models.VersionInfo{{
		Version: ocpi.Version,
		URL:     s.baseURL(r) + "/ocpi/" + ocpi.Version,
	}})
}

// VersionDetails lists the interfaces this CPO offers. Resource modules are sender interfaces,
// tokens and commands receiver interfaces.
func (s *Server) VersionDetails(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r) + BasePath
	writeSuccess(w, http.StatusOK, models.VersionEndpoints{
		Version: ocpi.Version,
		Endpoints: []models.Endpoint{
			{Identifier: models.ModuleLocations, Role: models.InterfaceSender, URL: base + "/locations"},
			{Identifier: models.ModuleTariffs, Role: models.InterfaceSender, URL: base + "/tariffs"},
			{Identifier: models.ModuleSessions, Role: models.InterfaceSender, URL: base + "/sessions"},
			{Identifier: models.ModuleCDRs, Role: models.InterfaceSender, URL: base + "/cdrs"},
			{Identifier: models.ModuleTokens, Role: models.InterfaceReceiver, URL: base + "/tokens"},
			{Identifier: models.ModuleCommands, Role: models.InterfaceReceiver, URL: base + "/commands"},
		},
	})
}
