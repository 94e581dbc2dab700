package models

import (
	"strings"
	"time"
)

type Connector struct {
	ID                 string    `json:"id" validate:"required"`
	Standard           string    `json:"standard"`
	Format             string    `json:"format"`
	PowerType          string    `json:"power_type"`
	MaxVoltage         int       `json:"max_voltage"`
	MaxAmperage        int       `json:"max_amperage"`
	MaxElectricPower   *int      `json:"max_electric_power,omitempty"`
	TariffIDs          []string  `json:"tariff_ids,omitempty"`
	TermsAndConditions string    `json:"terms_and_conditions,omitempty"`
	LastUpdated        time.Time `json:"last_updated"`
}

type EVSE struct {
	UID               string       `json:"uid" validate:"required"`
	EVSEID            string       `json:"evse_id,omitempty"`
	Status            string       `json:"status"`
	Capabilities      []string     `json:"capabilities,omitempty"`
	Connectors        []Connector  `json:"connectors" validate:"dive"`
	FloorLevel        string       `json:"floor_level,omitempty"`
	Coordinates       *GeoLocation `json:"coordinates,omitempty"`
	PhysicalReference string       `json:"physical_reference,omitempty"`
	LastUpdated       time.Time    `json:"last_updated"`
}

func (e EVSE) Connector(id string) (Connector, bool) {
	for _, c := range e.Connectors {
		if c.ID == id {
			return c, true
		}
	}
	return Connector{}, false
}

type Location struct {
	CountryCode        string           `json:"country_code" validate:"len=2"`
	PartyID            string           `json:"party_id" validate:"required"`
	ID                 string           `json:"id" validate:"required"`
	Publish            bool             `json:"publish"`
	Name               string           `json:"name,omitempty"`
	Address            string           `json:"address"`
	City               string           `json:"city"`
	PostalCode         string           `json:"postal_code,omitempty"`
	State              string           `json:"state,omitempty"`
	Country            string           `json:"country"`
	Coordinates        GeoLocation      `json:"coordinates"`
	ParkingType        string           `json:"parking_type,omitempty"`
	EVSEs              []EVSE           `json:"evses,omitempty" validate:"dive"`
	Directions         []DisplayText    `json:"directions,omitempty"`
	Operator           *BusinessDetails `json:"operator,omitempty"`
	Facilities         []string         `json:"facilities,omitempty"`
	TimeZone           string           `json:"time_zone"`
	ChargingWhenClosed *bool            `json:"charging_when_closed,omitempty"`
	LastUpdated        time.Time        `json:"last_updated"`
}

func (l Location) Identity() Identity {
	return NewIdentity(l.CountryCode, l.PartyID, l.ID)
}

func (l Location) Owner() PartyIdentity { return l.Identity().Party(RoleCPO) }

func (l Location) Updated() time.Time { return l.LastUpdated }

func (l Location) Validate() error { return check("location", l) }

func (l Location) WithIdentity(id Identity) (Location, error) {
	err := mergeIdentity(&l.CountryCode, &l.PartyID, &l.ID, id)
	return l, err
}

func (l Location) Stamp(t time.Time) Location {
	l.LastUpdated = t
	return l
}

func (l Location) Patch(raw []byte) (Location, error) {
	targets := map[string]any{
		"publish":              &l.Publish,
		"name":                 &l.Name,
		"address":              &l.Address,
		"city":                 &l.City,
		"postal_code":          &l.PostalCode,
		"state":                &l.State,
		"country":              &l.Country,
		"coordinates":          &l.Coordinates,
		"parking_type":         &l.ParkingType,
		"evses":                &l.EVSEs,
		"directions":           &l.Directions,
		"operator":             &l.Operator,
		"facilities":           &l.Facilities,
		"time_zone":            &l.TimeZone,
		"charging_when_closed": &l.ChargingWhenClosed,
		"last_updated":         &l.LastUpdated,
	}
	checkIdentity := identityTargets(targets, "id", l.Identity())
	if err := patchFields(raw, targets); err != nil {
		return l, err
	}
	if err := checkIdentity(); err != nil {
		return l, err
	}
	return l, nil
}

func (l Location) EVSE(uid string) (EVSE, bool) {
	for _, e := range l.EVSEs {
		if e.UID == uid {
			return e, true
		}
	}
	return EVSE{}, false
}

// MatchLocation is the default free-text predicate for locations.
func MatchLocation(l Location, pattern string) bool {
	if containsAny(pattern, l.ID, l.Name, l.Address, l.City, l.PostalCode, l.Country) {
		return true
	}
	for _, e := range l.EVSEs {
		if containsAny(pattern, e.UID, e.EVSEID) {
			return true
		}
	}
	for _, d := range l.Directions {
		if strings.Contains(d.Text, pattern) {
			return true
		}
	}
	return false
}

func containsAny(pattern string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(f, pattern) {
			return true
		}
	}
	return false
}
