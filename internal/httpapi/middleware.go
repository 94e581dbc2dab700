package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cpo/internal/metrics"
	"cpo/internal/models"
	"cpo/internal/ocpi"
	"cpo/internal/registry"
	"cpo/internal/security"
)

// RequestInfo describes one finished inbound request.
type RequestInfo struct {
	Method        string
	Path          string
	Module        string
	Status        int
	Duration      time.Duration
	RequestID     string
	CorrelationID string
	Party         models.PartyIdentity
}

// Observer is called after every request, in registration order.
type Observer func(RequestInfo)

func LogObserver(log *zap.Logger) Observer {
	return func(i RequestInfo) {
		fields := []zap.Field{
			zap.String("request_id", i.RequestID),
			zap.String("correlation_id", i.CorrelationID),
			zap.String("method", i.Method),
			zap.String("path", i.Path),
			zap.Int("status", i.Status),
			zap.Duration("duration", i.Duration),
		}
		if i.Module != "" {
			fields = append(fields, zap.String("module", i.Module))
		}
		if !i.Party.IsZero() {
			fields = append(fields, zap.Stringer("party", i.Party))
		}
		if i.Status >= 500 {
			log.Error("request failed", fields...)
			return
		}
		log.Info("request", fields...)
	}
}

func MetricsObserver(m *metrics.Collector) Observer {
	return func(i RequestInfo) {
		module := i.Module
		if module == "" {
			module = "other"
		}
		m.ObserveRequest(i.Method, module, i.Status, i.Duration)
	}
}

// requestState is filled in while the request travels down the handler chain.
type requestState struct {
	requestID     string
	correlationID string
	module        string
	cred          *models.AccessCredential
	party         *models.RemoteParty
}

type stateKey struct{}

func stateFrom(ctx context.Context) *requestState {
	if st, ok := ctx.Value(stateKey{}).(*requestState); ok {
		return st
	}
	return &requestState{}
}

// track assigns the correlation identifiers, echoes them and reports the request to the
// observers once it is done.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{
			requestID:     r.Header.Get(ocpi.HeaderRequestID),
			correlationID: r.Header.Get(ocpi.HeaderCorrelationID),
		}
		if st.requestID == "" {
			st.requestID = uuid.NewString()
		}
		if st.correlationID == "" {
			st.correlationID = uuid.NewString()
		}
		w.Header().Set(ocpi.HeaderRequestID, st.requestID)
		w.Header().Set(ocpi.HeaderCorrelationID, st.correlationID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), stateKey{}, st)))

		info := RequestInfo{
			Method:        r.Method,
			Path:          r.URL.Path,
			Module:        st.module,
			Status:        ww.Status(),
			Duration:      time.Since(start),
			RequestID:     st.requestID,
			CorrelationID: st.correlationID,
		}
		if info.Status == 0 {
			info.Status = http.StatusOK
		}
		if st.party != nil {
			info.Party = st.party.ID
		}
		for _, o := range s.Observers {
			o(info)
		}
	})
}

// access decides whether a resolved credential may use an interface.
type access func(cred *models.AccessCredential, party *models.RemoteParty) bool

func requireRole(role models.Role) access {
	return func(cred *models.AccessCredential, _ *models.RemoteParty) bool {
		return registry.Authorized(cred, role)
	}
}

func requireKnownParty(cred *models.AccessCredential, party *models.RemoteParty) bool {
	return registry.KnownParty(cred, party)
}

func allowAnyCredential(cred *models.AccessCredential, _ *models.RemoteParty) bool {
	return cred != nil && cred.Allowed()
}

// authorize resolves the Authorization header through the registry. With openData set, GETs
// pass without a credential.
func (s *Server) authorize(module models.ModuleID, ok access, openData bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := stateFrom(r.Context())
			st.module = string(module)

			if openData && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
				next.ServeHTTP(w, r)
				return
			}

			var cred *models.AccessCredential
			var party *models.RemoteParty
			if token := security.TokenFromHeader(r.Header.Get("Authorization")); token != "" {
				cred, party = s.Registry.Authorize(r.Context(), token)
			}
			st.cred, st.party = cred, party
			if !ok(cred, party) {
				if s.Metrics != nil {
					s.Metrics.IncrementAuthFailures(string(module))
				}
				writeEnvelope(w, http.StatusForbidden, ocpi.StatusClientError, "Not authorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoverer turns a handler panic into a 500 envelope. It runs inside track so observers see the status.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger().Error("handler panic", zap.String("method", r.Method), zap.String("path", r.URL.Path),
				zap.Any("panic", rec), zap.Stack("stack"))
			writeEnvelope(w, http.StatusInternalServerError, ocpi.StatusServerError, ocpi.StatusText(ocpi.StatusServerError), nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// callerParty is the identity of the authorized caller, zero for open-data requests.
func callerParty(r *http.Request) models.PartyIdentity {
	st := stateFrom(r.Context())
	if st.party != nil {
		return st.party.ID
	}
	if st.cred != nil {
		return st.cred.Grantor
	}
	return models.PartyIdentity{}
}

// allowDowngrade reads the per-request override of the downgrade guard.
func allowDowngrade(r *http.Request) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("allow_downgrades")))
	return err == nil && v
}
