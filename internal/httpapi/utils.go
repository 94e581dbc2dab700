package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

const maxBodyBytes = 2 << 20

func readAll(r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(nil, r.Body, limit)
	defer body.Close()
	return io.ReadAll(body)
}

// writeEnvelope writes data wrapped in an envelope. The HTTP status and the envelope code are
// independent of each other.
func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	if message == "" {
		message = ocpi.StatusText(code)
	}
	env, err := ocpi.NewEnvelope(code, message, data)
	if err != nil {
		status = http.StatusInternalServerError
		env, _ = ocpi.NewEnvelope(ocpi.StatusServerError, ocpi.StatusText(ocpi.StatusServerError), nil)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeEnvelope(w, status, ocpi.StatusSuccess, "", data)
}

// mapServiceError converts a service error into the HTTP status, envelope code and message
// sent to the caller.
func mapServiceError(err error) (int, int, string) {
	var dg *models.DowngradeError
	switch {
	case errors.As(err, &dg):
		return http.StatusConflict, ocpi.StatusClientError, dg.Error()
	case errors.Is(err, models.ErrInvalid), errors.Is(err, models.ErrIdentityMismatch):
		return http.StatusBadRequest, ocpi.StatusInvalidParameters, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, ocpi.StatusClientError, err.Error()
	case errors.Is(err, models.ErrDowngrade):
		return http.StatusConflict, ocpi.StatusClientError, err.Error()
	default:
		return http.StatusInternalServerError, ocpi.StatusServerError, ocpi.StatusText(ocpi.StatusServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapServiceError(err)
	st := stateFrom(r.Context())
	switch {
	case status >= 500:
		s.logger().Error("request failed", zap.String("request_id", st.requestID),
			zap.String("module", st.module), zap.Error(err))
	case errors.Is(err, models.ErrDowngrade) && s.Metrics != nil:
		s.Metrics.IncrementDowngrades(st.module)
	}
	writeEnvelope(w, status, code, msg, nil)
}

// decodeBody reads a JSON document into v. Unreadable or malformed bodies are invalid input.
func decodeBody(r *http.Request, v any) ([]byte, error) {
	raw, err := readAll(r, maxBodyBytes)
	if err != nil {
		return nil, models.Invalid("read body: %v", err)
	}
	if v == nil {
		return raw, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, models.Invalid("body: %v", err)
	}
	return raw, nil
}
