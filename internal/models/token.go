package models

import "time"

type Token struct {
	CountryCode        string    `json:"country_code" validate:"len=2"`
	PartyID            string    `json:"party_id" validate:"required"`
	UID                string    `json:"uid" validate:"required"`
	Type               string    `json:"type" validate:"required"`
	ContractID         string    `json:"contract_id"`
	VisualNumber       string    `json:"visual_number,omitempty"`
	Issuer             string    `json:"issuer"`
	GroupID            string    `json:"group_id,omitempty"`
	Valid              bool      `json:"valid"`
	Whitelist          string    `json:"whitelist"`
	Language           string    `json:"language,omitempty"`
	DefaultProfileType string    `json:"default_profile_type,omitempty"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Tokens are owned by the EMSP that issued them.
func (t Token) Identity() Identity {
	return NewIdentity(t.CountryCode, t.PartyID, t.UID)
}

func (t Token) Owner() PartyIdentity { return t.Identity().Party(RoleEMSP) }

func (t Token) Updated() time.Time { return t.LastUpdated }

func (t Token) Validate() error { return check("token", t) }

func (t Token) WithIdentity(id Identity) (Token, error) {
	err := mergeIdentity(&t.CountryCode, &t.PartyID, &t.UID, id)
	return t, err
}

func (t Token) Stamp(ts time.Time) Token {
	t.LastUpdated = ts
	return t
}

func (t Token) Patch(raw []byte) (Token, error) {
	targets := map[string]any{
		"type":                 &t.Type,
		"contract_id":          &t.ContractID,
		"visual_number":        &t.VisualNumber,
		"issuer":               &t.Issuer,
		"group_id":             &t.GroupID,
		"valid":                &t.Valid,
		"whitelist":            &t.Whitelist,
		"language":             &t.Language,
		"default_profile_type": &t.DefaultProfileType,
		"last_updated":         &t.LastUpdated,
	}
	checkIdentity := identityTargets(targets, "uid", t.Identity())
	if err := patchFields(raw, targets); err != nil {
		return t, err
	}
	if err := checkIdentity(); err != nil {
		return t, err
	}
	return t, nil
}

func MatchToken(t Token, pattern string) bool {
	return containsAny(pattern, t.UID, t.ContractID, t.VisualNumber, t.Issuer, t.GroupID)
}

type LocationReferences struct {
	LocationID string   `json:"location_id"`
	EVSEUIDs   []string `json:"evse_uids,omitempty"`
}

// AuthorizationInfo is the EMSP's answer to a real-time token authorization.
type AuthorizationInfo struct {
	Allowed                string              `json:"allowed"`
	Token                  Token               `json:"token"`
	Location               *LocationReferences `json:"location,omitempty"`
	AuthorizationReference string              `json:"authorization_reference,omitempty"`
	Info                   *DisplayText        `json:"info,omitempty"`
}
