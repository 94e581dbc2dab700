package ocpiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cpo/internal/models"
	"cpo/internal/ocpi"
)

var ErrNoCommonVersion = errors.New("remote party supports no common protocol version")

func resourceCall[T any](ctx context.Context, c *Client, module models.ModuleID, method string, body any, opts []CallOption, segments ...string) (*Response[T], error) {
	u, err := c.resolve(module, segments...)
	if err != nil {
		return nil, err
	}
	return do[T](ctx, c, call{module: module, method: method, url: u, body: body}, opts)
}

func (c *Client) GetLocation(ctx context.Context, id models.Identity, opts ...CallOption) (*Response[models.Location], error) {
	return resourceCall[models.Location](ctx, c, models.ModuleLocations, http.MethodGet, nil, opts, id.CountryCode, id.PartyID, id.ID)
}

func (c *Client) PutLocation(ctx context.Context, loc models.Location, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleLocations, http.MethodPut, loc, opts, loc.CountryCode, loc.PartyID, loc.ID)
}

// PatchLocation sends a partial location. patch must serialize to a JSON object.
func (c *Client) PatchLocation(ctx context.Context, id models.Identity, patch any, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleLocations, http.MethodPatch, patch, opts, id.CountryCode, id.PartyID, id.ID)
}

func (c *Client) PutEVSE(ctx context.Context, location models.Identity, evse models.EVSE, opts ...CallOption) (*Response[json.RawMessage], error) {
	if evse.UID == "" {
		return nil, models.Invalid("evse uid is required")
	}
	return resourceCall[json.RawMessage](ctx, c, models.ModuleLocations, http.MethodPut, evse, opts,
		location.CountryCode, location.PartyID, location.ID, evse.UID)
}

func (c *Client) PutTariff(ctx context.Context, t models.Tariff, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleTariffs, http.MethodPut, t, opts, t.CountryCode, t.PartyID, t.ID)
}

func (c *Client) DeleteTariff(ctx context.Context, id models.Identity, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleTariffs, http.MethodDelete, nil, opts, id.CountryCode, id.PartyID, id.ID)
}

func (c *Client) PutSession(ctx context.Context, s models.Session, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleSessions, http.MethodPut, s, opts, s.CountryCode, s.PartyID, s.ID)
}

func (c *Client) PatchSession(ctx context.Context, id models.Identity, patch any, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleSessions, http.MethodPatch, patch, opts, id.CountryCode, id.PartyID, id.ID)
}

// PostCDR sends a CDR to the receiver's collection. The receiver answers with the CDR's URL in
// the Location header.
func (c *Client) PostCDR(ctx context.Context, cdr models.CDR, opts ...CallOption) (*Response[json.RawMessage], error) {
	return resourceCall[json.RawMessage](ctx, c, models.ModuleCDRs, http.MethodPost, cdr, opts)
}

// TokenQuery selects a page of the remote token list.
type TokenQuery struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Offset   int
	Limit    int
}

func (q TokenQuery) values() url.Values {
	v := url.Values{}
	if q.DateFrom != nil {
		v.Set("date_from", q.DateFrom.UTC().Format(time.RFC3339))
	}
	if q.DateTo != nil {
		v.Set("date_to", q.DateTo.UTC().Format(time.RFC3339))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func (c *Client) GetTokens(ctx context.Context, q TokenQuery, opts ...CallOption) (*Response[[]models.Token], error) {
	u, err := c.resolve(models.ModuleTokens)
	if err != nil {
		return nil, err
	}
	if v := q.values(); len(v) > 0 {
		u += "?" + v.Encode()
	}
	return do[[]models.Token](ctx, c, call{module: models.ModuleTokens, method: http.MethodGet, url: u}, opts)
}

// PostTokenAuthorize asks the issuer whether a token may charge, optionally at a location.
func (c *Client) PostTokenAuthorize(ctx context.Context, tokenUID, tokenType string, loc *models.LocationReferences, opts ...CallOption) (*Response[models.AuthorizationInfo], error) {
	if tokenUID == "" {
		return nil, models.Invalid("token uid is required")
	}
	u, err := c.resolve(models.ModuleTokens, tokenUID, "authorize")
	if err != nil {
		return nil, err
	}
	if tokenType != "" {
		u += "?type=" + url.QueryEscape(tokenType)
	}
	var body any
	if loc != nil {
		body = loc
	}
	return do[models.AuthorizationInfo](ctx, c, call{module: models.ModuleTokens, method: http.MethodPost, url: u, body: body}, opts)
}

// PostCommandResult delivers the asynchronous outcome of a command to the URL the command
// carried.
func (c *Client) PostCommandResult(ctx context.Context, responseURL string, result models.CommandResult, opts ...CallOption) (*Response[json.RawMessage], error) {
	if responseURL == "" {
		return nil, models.Invalid("response_url is required")
	}
	return do[json.RawMessage](ctx, c, call{module: models.ModuleCommands, method: http.MethodPost, url: responseURL, body: result}, opts)
}

// FetchVersions reads the versions listing behind our credential's versions URL.
func (c *Client) FetchVersions(ctx context.Context, opts ...CallOption) (*Response[[]models.VersionInfo], error) {
	c.mu.RLock()
	u := c.cred.VersionsURL
	c.mu.RUnlock()
	if u == "" {
		return nil, fmt.Errorf("%w: no versions url for %s", ErrNoRemoteEndpoint, c.Party())
	}
	return do[[]models.VersionInfo](ctx, c, call{module: "versions", method: http.MethodGet, url: u}, opts)
}

func (c *Client) FetchVersionDetails(ctx context.Context, detailsURL string, opts ...CallOption) (*Response[models.VersionEndpoints], error) {
	return do[models.VersionEndpoints](ctx, c, call{module: "versions", method: http.MethodGet, url: detailsURL}, opts)
}

// RefreshEndpoints rediscovers the endpoints of the party for our protocol version and makes
// the client use them. The discovered version list is returned for persistence.
func (c *Client) RefreshEndpoints(ctx context.Context, opts ...CallOption) (models.VersionEndpoints, error) {
	versions, err := c.FetchVersions(ctx, opts...)
	if err != nil {
		return models.VersionEndpoints{}, err
	}
	chosen, ok := pickVersion(versions.Data)
	if !ok {
		return models.VersionEndpoints{}, fmt.Errorf("%w: %s", ErrNoCommonVersion, c.Party())
	}
	details, err := c.FetchVersionDetails(ctx, chosen.URL, opts...)
	if err != nil {
		return models.VersionEndpoints{}, err
	}
	ve := details.Data
	if ve.Version == "" {
		ve.Version = chosen.Version
	}
	ve.URL = chosen.URL

	c.mu.Lock()
	c.party.Versions = []models.VersionEndpoints{ve}
	c.cred.SelectedVersion = ve.Version
	c.mu.Unlock()
	return ve, nil
}

// pickVersion prefers our exact version, then any patch release of it.
func pickVersion(list []models.VersionInfo) (models.VersionInfo, bool) {
	for _, v := range list {
		if v.Version == ocpi.Version {
			return v, true
		}
	}
	for _, v := range list {
		if strings.HasPrefix(v.Version, ocpi.Version+".") {
			return v, true
		}
	}
	return models.VersionInfo{}, false
}
