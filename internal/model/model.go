// Package model defines the core domain types shared across the tariff engine.
// All rates and monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TariffType distinguishes the preferential and the default weighted rate.
type TariffType string

const (
	// AHS is the applied (preferential) weighted rate used on FTA routes.
	AHS TariffType = "AHS"
	// MFN is the Most-Favoured-Nation weighted rate, the non-preferential default.
	MFN TariffType = "MFN"
)

// Valid reports whether t is one of the two known tariff types.
func (t TariffType) Valid() bool {
	return t == AHS || t == MFN
}

// RateEntry is one row of the rate table. Country is the reporting
// (importing) country and Partner the exporting country. Either rate may be
// null while the ingestion job has not delivered data yet.
type RateEntry struct {
	Country     string              `json:"country" db:"country"`
	Partner     string              `json:"partner" db:"partner"`
	HSCode      string              `json:"hsCode,omitempty" db:"hs_code"`
	Year        int                 `json:"year,omitempty" db:"year"`
	AHSWeighted decimal.NullDecimal `json:"ahsWeighted" db:"ahs_weighted"`
	MFNWeighted decimal.NullDecimal `json:"mfnWeighted" db:"mfn_weighted"`
}

// Rate returns the weighted rate for the given type.
func (e *RateEntry) Rate(t TariffType) decimal.NullDecimal {
	if t == AHS {
		return e.AHSWeighted
	}
	return e.MFNWeighted
}

// SetRate sets the weighted rate for the given type.
func (e *RateEntry) SetRate(t TariffType, rate decimal.Decimal) {
	v := decimal.NewNullDecimal(rate)
	if t == AHS {
		e.AHSWeighted = v
	} else {
		e.MFNWeighted = v
	}
}

// TariffDefinition is a user-visible rate rule. Admin definitions are keyed
// "{importingTo}_{exportingFrom}" and backed by the rate table; session
// definitions carry a generated UUID and live only in session storage.
type TariffDefinition struct {
	ID             string          `json:"id"`
	Product        string          `json:"product"`
	ExportingFrom  string          `json:"exportingFrom"`
	ImportingTo    string          `json:"importingTo"`
	Type           TariffType      `json:"type"`
	Rate           decimal.Decimal `json:"rate"`
	EffectiveDate  string          `json:"effectiveDate"`
	ExpirationDate string          `json:"expirationDate"`
}

// CalculationHistoryEntry is a completed calculation recorded in a session's
// history. Export cart entries share the same shape and are copied by value.
type CalculationHistoryEntry struct {
	ID            string          `json:"id"`
	Product       string          `json:"product"`
	Brand         string          `json:"brand"`
	ExportingFrom string          `json:"exportingFrom"`
	ImportingTo   string          `json:"importingTo"`
	Quantity      decimal.Decimal `json:"quantity"`
	Unit          string          `json:"unit"`
	ProductCost   decimal.Decimal `json:"productCost"`
	TariffRate    decimal.Decimal `json:"tariffRate"`
	TariffAmount  decimal.Decimal `json:"tariffAmount"` // always totalCost - productCost
	TotalCost     decimal.Decimal `json:"totalCost"`
	TariffType    string          `json:"tariffType"`
	Source        string          `json:"source"`             // "global" or "simulator"
	Currency      string          `json:"currency,omitempty"` // display currency, USD when blank
	CreatedAt     time.Time       `json:"createdAt"`
}

// Product is a catalogue item that can be quoted.
type Product struct {
	Name     string          `json:"name" db:"name"`
	Brand    string          `json:"brand" db:"brand"`
	UnitCost decimal.Decimal `json:"unitCost" db:"unit_cost"`
	Unit     string          `json:"unit" db:"unit"`
	HSCode   string          `json:"hsCode,omitempty" db:"hs_code"`
}
