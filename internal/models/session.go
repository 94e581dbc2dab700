package models

import "time"

// CdrToken is the token reference carried by sessions and CDRs.
type CdrToken struct {
	CountryCode string `json:"country_code"`
	PartyID     string `json:"party_id"`
	UID         string `json:"uid"`
	Type        string `json:"type"`
	ContractID  string `json:"contract_id"`
}

type Session struct {
	CountryCode            string     `json:"country_code" validate:"len=2"`
	PartyID                string     `json:"party_id" validate:"required"`
	ID                     string     `json:"id" validate:"required"`
	StartDateTime          time.Time  `json:"start_date_time" validate:"required"`
	EndDateTime            *time.Time `json:"end_date_time,omitempty"`
	KWh                    float64    `json:"kwh"`
	CdrToken               CdrToken   `json:"cdr_token"`
	AuthMethod             string     `json:"auth_method"`
	AuthorizationReference string     `json:"authorization_reference,omitempty"`
	LocationID             string     `json:"location_id" validate:"required"`
	EVSEUID                string     `json:"evse_uid"`
	ConnectorID            string     `json:"connector_id"`
	MeterID                string     `json:"meter_id,omitempty"`
	Currency               string     `json:"currency"`
	TotalCost              *Price     `json:"total_cost,omitempty"`
	Status                 string     `json:"status"`
	LastUpdated            time.Time  `json:"last_updated"`
}

func (s Session) Identity() Identity {
	return NewIdentity(s.CountryCode, s.PartyID, s.ID)
}

func (s Session) Owner() PartyIdentity { return s.Identity().Party(RoleCPO) }

func (s Session) Updated() time.Time { return s.LastUpdated }

func (s Session) Validate() error { return check("session", s) }

func (s Session) WithIdentity(id Identity) (Session, error) {
	err := mergeIdentity(&s.CountryCode, &s.PartyID, &s.ID, id)
	return s, err
}

func (s Session) Stamp(t time.Time) Session {
	s.LastUpdated = t
	return s
}

func (s Session) Patch(raw []byte) (Session, error) {
	targets := map[string]any{
		"start_date_time":         &s.StartDateTime,
		"end_date_time":           &s.EndDateTime,
		"kwh":                     &s.KWh,
		"cdr_token":               &s.CdrToken,
		"auth_method":             &s.AuthMethod,
		"authorization_reference": &s.AuthorizationReference,
		"location_id":             &s.LocationID,
		"evse_uid":                &s.EVSEUID,
		"connector_id":            &s.ConnectorID,
		"meter_id":                &s.MeterID,
		"currency":                &s.Currency,
		"total_cost":              &s.TotalCost,
		"status":                  &s.Status,
		"last_updated":            &s.LastUpdated,
	}
	checkIdentity := identityTargets(targets, "id", s.Identity())
	if err := patchFields(raw, targets); err != nil {
		return s, err
	}
	if err := checkIdentity(); err != nil {
		return s, err
	}
	return s, nil
}

func MatchSession(s Session, pattern string) bool {
	return containsAny(pattern, s.ID, s.LocationID, s.EVSEUID, s.CdrToken.UID, s.CdrToken.ContractID, s.AuthorizationReference)
}
