// Package httpapi serves the CPO interfaces: resource collections and singletons, commands and
// the version listings.
package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"cpo/internal/metrics"
	"cpo/internal/models"
	"cpo/internal/ocpi"
	"cpo/internal/registry"
	"cpo/internal/services"
)

// BasePath is where the CPO module interfaces are mounted.
const BasePath = "/ocpi/" + ocpi.Version + "/cpo"

// OpenData lists the resource kinds whose GETs are served without a credential.
type OpenData struct {
	Locations bool
	Tariffs   bool
}

type Server struct {
	// Self is the identity resources without an owner in the path belong to.
	Self models.PartyIdentity
	// ExternalURL is the public base URL used in links. Empty means derived from the request.
	ExternalURL string
	OpenData    OpenData
	CORSOrigins []string

	Registry  *registry.Registry
	Locations *services.ResourceService[models.Location]
	Tariffs   *services.ResourceService[models.Tariff]
	Sessions  *services.ResourceService[models.Session]
	CDRs      *services.ResourceService[models.CDR]
	Tokens    *services.ResourceService[models.Token]
	Commands  *services.CommandDispatcher

	Metrics        *metrics.Collector
	MetricsHandler http.Handler
	Observers      []Observer
	Log            *zap.Logger
}

func (s *Server) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.track)
	r.Use(s.recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, ocpi.StatusClientError, "Unknown path "+r.URL.Path, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusMethodNotAllowed, ocpi.StatusClientError, "Method "+r.Method+" not allowed", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	if s.MetricsHandler != nil {
		r.Handle("/metrics", s.MetricsHandler)
	}

	versions := s.authorize(models.ModuleID("versions"), allowAnyCredential, false)
	handle(r, "/ocpi/versions", versions, methods{http.MethodGet: s.ListVersions})
	handle(r, "/ocpi/"+ocpi.Version, versions, methods{http.MethodGet: s.VersionDetails})

	r.Route(BasePath, func(r chi.Router) {
		loc := resourceRoutes[models.Location]{s: s, module: models.ModuleLocations, svc: s.Locations, idParam: "location_id"}
		auth := s.authorize(models.ModuleLocations, requireRole(models.RoleEMSP), s.OpenData.Locations)
		handle(r, "/locations", auth, methods{http.MethodGet: loc.List})
		handle(r, "/locations/{location_id}", auth, loc.singleton(true))
		handle(r, "/locations/{location_id}/{evse_uid}", auth, methods{http.MethodGet: s.GetEVSE})
		handle(r, "/locations/{location_id}/{evse_uid}/{connector_id}", auth, methods{http.MethodGet: s.GetConnector})

		tar := resourceRoutes[models.Tariff]{s: s, module: models.ModuleTariffs, svc: s.Tariffs, idParam: "tariff_id"}
		auth = s.authorize(models.ModuleTariffs, requireRole(models.RoleEMSP), s.OpenData.Tariffs)
		handle(r, "/tariffs", auth, methods{http.MethodGet: tar.List})
		handle(r, "/tariffs/{tariff_id}", auth, tar.singleton(true))

		ses := resourceRoutes[models.Session]{s: s, module: models.ModuleSessions, svc: s.Sessions, idParam: "session_id"}
		auth = s.authorize(models.ModuleSessions, requireRole(models.RoleEMSP), false)
		handle(r, "/sessions", auth, methods{http.MethodGet: ses.List})
		handle(r, "/sessions/{session_id}", auth, ses.singleton(true))

		cdr := resourceRoutes[models.CDR]{s: s, module: models.ModuleCDRs, svc: s.CDRs, idParam: "cdr_id"}
		auth = s.authorize(models.ModuleCDRs, requireRole(models.RoleEMSP), false)
		handle(r, "/cdrs", auth, methods{http.MethodGet: cdr.List})
		handle(r, "/cdrs/{cdr_id}", auth, cdr.singleton(false))

		tok := resourceRoutes[models.Token]{s: s, module: models.ModuleTokens, svc: s.Tokens, idParam: "token_uid", ownerInPath: true}
		auth = s.authorize(models.ModuleTokens, requireRole(models.RoleEMSP), false)
		handle(r, "/tokens", auth, methods{http.MethodGet: tok.List})
		handle(r, "/tokens/{country_code}/{party_id}", auth, methods{http.MethodDelete: s.DeletePartyTokens})
		handle(r, "/tokens/{country_code}/{party_id}/{token_uid}", auth, tok.singleton(true))

		auth = s.authorize(models.ModuleCommands, requireKnownParty, false)
		handle(r, "/commands/{command}", auth, methods{http.MethodPost: s.PostCommand})
	})

	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: allowedHeaders,
		ExposedHeaders: []string{
			ocpi.HeaderRequestID, ocpi.HeaderCorrelationID, ocpi.HeaderTotalCount, ocpi.HeaderFilteredCount,
			ocpi.HeaderLimit, ocpi.HeaderLink, "ETag", "Last-Modified",
		},
	}).Handler(r)
}

func (s *Server) corsOrigins() []string {
	if len(s.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.CORSOrigins
}

var allowedHeaders = []string{
	"Authorization", "Content-Type", "Accept",
	ocpi.HeaderRequestID, ocpi.HeaderCorrelationID,
	ocpi.HeaderFromCountryCode, ocpi.HeaderFromPartyID, ocpi.HeaderToCountryCode, ocpi.HeaderToPartyID,
}

type methods map[string]http.HandlerFunc

// handle registers the handlers of one path behind auth, plus an unauthenticated OPTIONS
// answer listing them.
func handle(r chi.Router, pattern string, auth func(http.Handler) http.Handler, m methods) {
	allowed := make([]string, 0, len(m)+1)
	for method, h := range m {
		r.Method(method, pattern, auth(h))
		allowed = append(allowed, method)
	}
	allowed = append(allowed, http.MethodOptions)
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	r.Options(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		w.Header().Set("Access-Control-Allow-Methods", allow)
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(allowedHeaders, ", "))
		w.WriteHeader(http.StatusOK)
	})
}

// baseURL is the scheme and host links are built from.
func (s *Server) baseURL(r *http.Request) string {
	if s.ExternalURL != "" {
		return strings.TrimRight(s.ExternalURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host
}
