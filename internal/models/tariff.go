package models

import (
	"strings"
	"time"
)

type PriceComponent struct {
	Type     string   `json:"type"`
	Price    float64  `json:"price"`
	VAT      *float64 `json:"vat,omitempty"`
	StepSize int      `json:"step_size"`
}

type TariffRestrictions struct {
	StartTime   string   `json:"start_time,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	MinKWh      *float64 `json:"min_kwh,omitempty"`
	MaxKWh      *float64 `json:"max_kwh,omitempty"`
	MinPower    *float64 `json:"min_power,omitempty"`
	MaxPower    *float64 `json:"max_power,omitempty"`
	MinDuration *int     `json:"min_duration,omitempty"`
	MaxDuration *int     `json:"max_duration,omitempty"`
	DayOfWeek   []string `json:"day_of_week,omitempty"`
}

type TariffElement struct {
	PriceComponents []PriceComponent    `json:"price_components"`
	Restrictions    *TariffRestrictions `json:"restrictions,omitempty"`
}

type Tariff struct {
	CountryCode   string          `json:"country_code" validate:"len=2"`
	PartyID       string          `json:"party_id" validate:"required"`
	ID            string          `json:"id" validate:"required"`
	Currency      string          `json:"currency" validate:"len=3"`
	Type          string          `json:"type,omitempty"`
	TariffAltText []DisplayText   `json:"tariff_alt_text,omitempty"`
	TariffAltURL  string          `json:"tariff_alt_url,omitempty"`
	MinPrice      *Price          `json:"min_price,omitempty"`
	MaxPrice      *Price          `json:"max_price,omitempty"`
	Elements      []TariffElement `json:"elements"`
	StartDateTime *time.Time      `json:"start_date_time,omitempty"`
	EndDateTime   *time.Time      `json:"end_date_time,omitempty"`
	LastUpdated   time.Time       `json:"last_updated"`
}

func (t Tariff) Identity() Identity {
	return NewIdentity(t.CountryCode, t.PartyID, t.ID)
}

func (t Tariff) Owner() PartyIdentity { return t.Identity().Party(RoleCPO) }

func (t Tariff) Updated() time.Time { return t.LastUpdated }

func (t Tariff) Validate() error { return check("tariff", t) }

func (t Tariff) WithIdentity(id Identity) (Tariff, error) {
	err := mergeIdentity(&t.CountryCode, &t.PartyID, &t.ID, id)
	return t, err
}

func (t Tariff) Stamp(ts time.Time) Tariff {
	t.LastUpdated = ts
	return t
}

func (t Tariff) Patch(raw []byte) (Tariff, error) {
	targets := map[string]any{
		"currency":        &t.Currency,
		"type":            &t.Type,
		"tariff_alt_text": &t.TariffAltText,
		"tariff_alt_url":  &t.TariffAltURL,
		"min_price":       &t.MinPrice,
		"max_price":       &t.MaxPrice,
		"elements":        &t.Elements,
		"start_date_time": &t.StartDateTime,
		"end_date_time":   &t.EndDateTime,
		"last_updated":    &t.LastUpdated,
	}
	checkIdentity := identityTargets(targets, "id", t.Identity())
	if err := patchFields(raw, targets); err != nil {
		return t, err
	}
	if err := checkIdentity(); err != nil {
		return t, err
	}
	return t, nil
}

func MatchTariff(t Tariff, pattern string) bool {
	if containsAny(pattern, t.ID, t.Currency, t.Type, t.TariffAltURL) {
		return true
	}
	for _, txt := range t.TariffAltText {
		if strings.Contains(txt.Text, pattern) {
			return true
		}
	}
	return false
}
