package ocpiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

var (
	emsp = models.NewPartyIdentity("NL", "EMS", models.RoleEMSP)
	self = models.NewPartyIdentity("DE", "CPO", models.RoleCPO)
)

func partyWith(baseURL string) models.RemoteParty {
	return models.RemoteParty{
		ID:     emsp,
		Status: models.StatusAllowed,
		Outgoing: []models.OutgoingCredential{{
			Token:           "out-token",
			VersionsURL:     baseURL + "/versions",
			SelectedVersion: "2.2",
			Status:          models.StatusAllowed,
		}},
		Versions: []models.VersionEndpoints{{
			Version: "2.2",
			Endpoints: []models.Endpoint{
				{Identifier: models.ModuleLocations, Role: models.InterfaceReceiver, URL: baseURL + "/locations"},
				{Identifier: models.ModuleTokens, Role: models.InterfaceSender, URL: baseURL + "/tokens"},
				{Identifier: models.ModuleCDRs, Role: models.InterfaceReceiver, URL: baseURL + "/cdrs"},
			},
		}},
	}
}

func envelopeBody(t *testing.T, code int, data any) []byte {
	t.Helper()
	env, err := ocpi.NewEnvelope(code, ocpi.StatusText(code), data)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	return raw
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(string(body))),
	}
}

func TestPutLocationSendsHeadersAndBody(t *testing.T) {
	var got *http.Request
	var gotBody models.Location
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, nil))
	}))
	defer srv.Close()

	c, err := New(partyWith(srv.URL), Options{From: self, UserAgent: "test-agent"})
	require.NoError(t, err)

	loc := models.Location{CountryCode: "DE", PartyID: "CPO", ID: "LOC 1", City: "Berlin"}
	resp, err := c.PutLocation(context.Background(), loc, WithCorrelationID("corr-1"))
	require.NoError(t, err)
	assert.Equal(t, ocpi.StatusSuccess, resp.StatusCode)
	assert.Equal(t, http.StatusOK, resp.HTTPStatus)
	assert.Equal(t, "corr-1", resp.CorrelationID)
	assert.NotEmpty(t, resp.RequestID)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/locations/DE/CPO/LOC%201", got.URL.EscapedPath())
	assert.Equal(t, "Token out-token", got.Header.Get("Authorization"))
	assert.Equal(t, "test-agent", got.Header.Get("User-Agent"))
	assert.Equal(t, "corr-1", got.Header.Get(ocpi.HeaderCorrelationID))
	assert.Equal(t, resp.RequestID, got.Header.Get(ocpi.HeaderRequestID))
	assert.Equal(t, "DE", got.Header.Get(ocpi.HeaderFromCountryCode))
	assert.Equal(t, "EMS", got.Header.Get(ocpi.HeaderToPartyID))
	assert.Equal(t, "Berlin", gotBody.City)
}

func TestGetTokensDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, []models.Token{{CountryCode: "NL", PartyID: "EMS", UID: "U1", Type: "RFID"}}))
	}))
	defer srv.Close()

	c, err := New(partyWith(srv.URL), Options{})
	require.NoError(t, err)
	resp, err := c.GetTokens(context.Background(), TokenQuery{Offset: 10, Limit: 5})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "U1", resp.Data[0].UID)
}

func TestMissingEndpointMakesNoCall(t *testing.T) {
	var calls int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("unexpected")
	})
	c, err := New(partyWith("https://emsp.example.com"), Options{Doer: doer})
	require.NoError(t, err)

	_, err = c.PutTariff(context.Background(), models.Tariff{CountryCode: "DE", PartyID: "CPO", ID: "T1"})
	assert.ErrorIs(t, err, ErrNoRemoteEndpoint)
	_, err = c.PutSession(context.Background(), models.Session{CountryCode: "DE", PartyID: "CPO", ID: "S1"})
	assert.ErrorIs(t, err, ErrNoRemoteEndpoint)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	_, ok := c.ResolveEndpoint(models.ModuleTariffs, "")
	assert.False(t, ok)
	u, ok := c.ResolveEndpoint(models.ModuleLocations, "")
	assert.True(t, ok)
	assert.Equal(t, "https://emsp.example.com/locations", u)
}

func TestTransportFailureRetriesThenFails(t *testing.T) {
	var calls int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("connection refused")
	})
	var observed []CallInfo
	c, err := New(partyWith("https://emsp.example.com"), Options{
		Doer:       doer,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Observers:  []Observer{func(ci CallInfo) { observed = append(observed, ci) }},
	})
	require.NoError(t, err)

	_, err = c.GetLocation(context.Background(), models.NewIdentity("DE", "CPO", "LOC1"))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, observed, 1)
	assert.Equal(t, 3, observed[0].Attempts)
	assert.Error(t, observed[0].Err)
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return jsonResponse(http.StatusBadGateway, []byte("bad gateway")), nil
		}
		return jsonResponse(http.StatusOK, envelopeBody(t, ocpi.StatusSuccess, models.Location{ID: "LOC1"})), nil
	})
	c, err := New(partyWith("https://emsp.example.com"), Options{Doer: doer, MaxRetries: 1})
	require.NoError(t, err)

	resp, err := c.GetLocation(context.Background(), models.NewIdentity("DE", "CPO", "LOC1"))
	require.NoError(t, err)
	assert.Equal(t, "LOC1", resp.Data.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestLastServerErrorIsDecoded(t *testing.T) {
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, envelopeBody(t, ocpi.StatusServerError, nil)), nil
	})
	c, err := New(partyWith("https://emsp.example.com"), Options{Doer: doer, MaxRetries: 1})
	require.NoError(t, err)

	_, err = c.GetLocation(context.Background(), models.NewIdentity("DE", "CPO", "LOC1"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.HTTPStatus)
	assert.Equal(t, ocpi.StatusServerError, se.Code)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return jsonResponse(http.StatusBadRequest, envelopeBody(t, ocpi.StatusInvalidParameters, nil)), nil
	})
	c, err := New(partyWith("https://emsp.example.com"), Options{Doer: doer, MaxRetries: 3})
	require.NoError(t, err)

	_, err = c.PostCDR(context.Background(), models.CDR{ID: "CDR1"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ocpi.StatusInvalidParameters, se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNonEnvelopeAnswer(t *testing.T) {
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, []byte("<html>not found</html>")), nil
	})
	c, err := New(partyWith("https://emsp.example.com"), Options{Doer: doer})
	require.NoError(t, err)

	_, err = c.GetLocation(context.Background(), models.NewIdentity("DE", "CPO", "LOC1"))
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.HTTPStatus)
	assert.Contains(t, se.Message, "not found")
}

func TestCancellationAbortsRetries(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	doer := doerFunc(func(*http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		cancel()
		return nil, errors.New("connection reset")
	})
	c, err := New(partyWith("https://emsp.example.com"), Options{Doer: doer, MaxRetries: 5, RetryDelay: time.Hour})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.GetLocation(ctx, models.NewIdentity("DE", "CPO", "LOC1"))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestPerAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := New(partyWith(srv.URL), Options{RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	_, err = c.GetLocation(context.Background(), models.NewIdentity("DE", "CPO", "LOC1"))
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRequiresUsableCredential(t *testing.T) {
	p := partyWith("https://emsp.example.com")
	p.Outgoing[0].Status = models.StatusBlocked
	_, err := New(p, Options{})
	assert.ErrorIs(t, err, ErrNoCredential)

	p = partyWith("https://emsp.example.com")
	p.Outgoing[0].Token = ""
	_, err = New(p, Options{})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestPostCommandResultUsesResponseURL(t *testing.T) {
	var path string
	var result models.CommandResult
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&result)
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, nil))
	}))
	defer srv.Close()

	c, err := New(partyWith(srv.URL), Options{})
	require.NoError(t, err)
	_, err = c.PostCommandResult(context.Background(), srv.URL+"/commands/START_SESSION/42",
		models.CommandResult{Result: models.ResultAccepted})
	require.NoError(t, err)
	assert.Equal(t, "/commands/START_SESSION/42", path)
	assert.Equal(t, models.ResultAccepted, result.Result)

	_, err = c.PostCommandResult(context.Background(), "", models.CommandResult{})
	assert.ErrorIs(t, err, models.ErrInvalid)
}

func TestPostTokenAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/U1/authorize", r.URL.Path)
		assert.Equal(t, "RFID", r.URL.Query().Get("type"))
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, models.AuthorizationInfo{Allowed: "ALLOWED"}))
	}))
	defer srv.Close()

	c, err := New(partyWith(srv.URL), Options{})
	require.NoError(t, err)
	resp, err := c.PostTokenAuthorize(context.Background(), "U1", "RFID", &models.LocationReferences{LocationID: "LOC1"})
	require.NoError(t, err)
	assert.Equal(t, "ALLOWED", resp.Data.Allowed)
}

func TestRefreshEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/versions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, []models.VersionInfo{
			{Version: "2.1.1", URL: srv.URL + "/2.1.1"},
			{Version: "2.2", URL: srv.URL + "/2.2"},
		}))
	})
	mux.HandleFunc("/2.2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, models.VersionEndpoints{
			Version: "2.2",
			Endpoints: []models.Endpoint{
				{Identifier: models.ModuleTariffs, Role: models.InterfaceReceiver, URL: srv.URL + "/new/tariffs"},
			},
		}))
	})

	c, err := New(partyWith(srv.URL), Options{})
	require.NoError(t, err)
	ve, err := c.RefreshEndpoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.2", ve.Version)

	u, ok := c.ResolveEndpoint(models.ModuleTariffs, "")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/new/tariffs", u)
	_, ok = c.ResolveEndpoint(models.ModuleLocations, "")
	assert.False(t, ok)
}

func TestPickVersion(t *testing.T) {
	v, ok := pickVersion([]models.VersionInfo{{Version: "2.1.1"}, {Version: "2.2.1"}})
	require.True(t, ok)
	assert.Equal(t, "2.2.1", v.Version)
	_, ok = pickVersion([]models.VersionInfo{{Version: "2.1.1"}})
	assert.False(t, ok)
}
