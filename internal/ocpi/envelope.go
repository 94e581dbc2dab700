// Package ocpi holds the wire-level pieces shared by the server and the outbound client:
// the response envelope, status codes and header names.
package ocpi

import (
	"encoding/json"
	"time"
)

const (
	StatusSuccess           = 1000
	StatusClientError       = 2000
	StatusInvalidParameters = 2001
	StatusNotEnoughInfo     = 2002
	StatusUnknownLocation   = 2003
	StatusServerError       = 3000
	StatusClientAPIError    = 3001
	StatusUnsupportedVer    = 3002
	StatusNoMatchingEndpts  = 3003
)

const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderTotalCount    = "X-Total-Count"
	HeaderFilteredCount = "X-Filtered-Count"
	HeaderLimit         = "X-Limit"
	HeaderLink          = "Link"

	HeaderFromCountryCode = "OCPI-from-country-code"
	HeaderFromPartyID     = "OCPI-from-party-id"
	HeaderToCountryCode   = "OCPI-to-country-code"
	HeaderToPartyID       = "OCPI-to-party-id"
)

// Version is the protocol version this module speaks.
const Version = "2.2"

// Envelope wraps every response body.
type Envelope struct {
	Data          json.RawMessage `json:"data,omitempty"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Success reports whether the status code is in the 1xxx range.
func (e Envelope) Success() bool {
	return e.StatusCode >= 1000 && e.StatusCode < 2000
}

// NewEnvelope serializes data into an envelope. A nil data leaves the member out.
func NewEnvelope(code int, message string, data any) (Envelope, error) {
	env := Envelope{StatusCode: code, StatusMessage: message, Timestamp: time.Now().UTC()}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = raw
	return env, nil
}

// StatusText gives the default message for a status code.
func StatusText(code int) string {
	switch code {
	case StatusSuccess:
		return "Success"
	case StatusClientError:
		return "Generic client error"
	case StatusInvalidParameters:
		return "Invalid or missing parameters"
	case StatusNotEnoughInfo:
		return "Not enough information"
	case StatusUnknownLocation:
		return "Unknown location"
	case StatusServerError:
		return "Generic server error"
	case StatusClientAPIError:
		return "Unable to use the client's API"
	case StatusUnsupportedVer:
		return "Unsupported version"
	case StatusNoMatchingEndpts:
		return "No matching endpoints or expected endpoints missing between parties"
	default:
		return ""
	}
}
