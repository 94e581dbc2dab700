package models

import "time"

type CdrLocation struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name,omitempty"`
	Address            string      `json:"address"`
	City               string      `json:"city"`
	PostalCode         string      `json:"postal_code,omitempty"`
	Country            string      `json:"country"`
	Coordinates        GeoLocation `json:"coordinates"`
	EVSEUID            string      `json:"evse_uid"`
	EVSEID             string      `json:"evse_id"`
	ConnectorID        string      `json:"connector_id"`
	ConnectorStandard  string      `json:"connector_standard"`
	ConnectorFormat    string      `json:"connector_format"`
	ConnectorPowerType string      `json:"connector_power_type"`
}

type CdrDimension struct {
	Type   string  `json:"type"`
	Volume float64 `json:"volume"`
}

type ChargingPeriod struct {
	StartDateTime time.Time      `json:"start_date_time"`
	Dimensions    []CdrDimension `json:"dimensions"`
	TariffID      string         `json:"tariff_id,omitempty"`
}

// CDR is a charge detail record. CDRs are immutable once issued.
type CDR struct {
	CountryCode     string           `json:"country_code" validate:"len=2"`
	PartyID         string           `json:"party_id" validate:"required"`
	ID              string           `json:"id" validate:"required"`
	StartDateTime   time.Time        `json:"start_date_time" validate:"required"`
	EndDateTime     time.Time        `json:"end_date_time" validate:"required,gtefield=StartDateTime"`
	SessionID       string           `json:"session_id,omitempty"`
	CdrToken        CdrToken         `json:"cdr_token"`
	AuthMethod      string           `json:"auth_method"`
	CdrLocation     CdrLocation      `json:"cdr_location"`
	Currency        string           `json:"currency"`
	ChargingPeriods []ChargingPeriod `json:"charging_periods"`
	TotalCost       Price            `json:"total_cost"`
	TotalEnergy     float64          `json:"total_energy"`
	TotalTime       float64          `json:"total_time"`
	Remark          string           `json:"remark,omitempty"`
	Credit          bool             `json:"credit,omitempty"`
	LastUpdated     time.Time        `json:"last_updated"`
}

func (c CDR) Identity() Identity {
	return NewIdentity(c.CountryCode, c.PartyID, c.ID)
}

func (c CDR) Owner() PartyIdentity { return c.Identity().Party(RoleCPO) }

func (c CDR) Updated() time.Time { return c.LastUpdated }

func (c CDR) Validate() error { return check("cdr", c) }

func (c CDR) WithIdentity(id Identity) (CDR, error) {
	err := mergeIdentity(&c.CountryCode, &c.PartyID, &c.ID, id)
	return c, err
}

func (c CDR) Stamp(t time.Time) CDR {
	c.LastUpdated = t
	return c
}

func (c CDR) Patch([]byte) (CDR, error) {
	return c, Invalid("cdrs cannot be patched")
}

func MatchCDR(c CDR, pattern string) bool {
	return containsAny(pattern, c.ID, c.SessionID, c.CdrLocation.ID, c.CdrLocation.EVSEUID, c.CdrToken.UID, c.CdrToken.ContractID)
}
