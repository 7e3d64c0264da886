// Package tariff resolves effective tariff rates and manages admin
// overrides written to the rate table.
//
// All rates use shopspring/decimal. A route is preferential when both
// countries belong to the FTA set; preferential routes use the AHS rate,
// all others the MFN rate.
package tariff

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tariffsim/tariff-engine/internal/errs"
	"github.com/tariffsim/tariff-engine/internal/fta"
	"github.com/tariffsim/tariff-engine/internal/metrics"
	"github.com/tariffsim/tariff-engine/internal/model"
	"github.com/tariffsim/tariff-engine/internal/store"
)

// Listing defaults for definitions derived from the rate table.
const (
	listedEffectiveDate  = "1/1/2022"
	listedExpirationDate = "Ongoing"
	defaultEffectiveDate = "N/A"
)

// Notifier receives admin override changes. op is "created", "updated"
// or "deleted".
type Notifier interface {
	OverrideChanged(op string, def model.TariffDefinition)
}

// Notifiers fans a change out to each notifier in order.
type Notifiers []Notifier

func (ns Notifiers) OverrideChanged(op string, def model.TariffDefinition) {
	for _, n := range ns {
		n.OverrideChanged(op, def)
	}
}

// Resolution is the effective rate for a route.
type Resolution struct {
	Type         model.TariffType `json:"type"`
	Rate         decimal.Decimal  `json:"rate"`
	Preferential bool             `json:"hasFTA"`
}

// OverrideRequest is the body of an admin override write.
type OverrideRequest struct {
	Product        string          `json:"product"`
	ExportingFrom  string          `json:"exportingFrom"`
	ImportingTo    string          `json:"importingTo"`
	Type           string          `json:"type"`
	Rate           decimal.Decimal `json:"rate"`
	EffectiveDate  string          `json:"effectiveDate"`
	ExpirationDate string          `json:"expirationDate"`
}

// Registry resolves rates and applies admin overrides.
type Registry struct {
	rates    store.RateStore
	index    *OverrideIndex
	notifier Notifier
}

// NewRegistry creates a registry over the rate table. notifier may be nil.
func NewRegistry(rates store.RateStore, notifier Notifier) *Registry {
	return &Registry{
		rates:    rates,
		index:    NewOverrideIndex(),
		notifier: notifier,
	}
}

// Resolve returns the effective rate for goods from partner into reporter.
// A missing entry, or one whose selected rate has not been ingested yet,
// is a NotFound error.
func (r *Registry) Resolve(ctx context.Context, reporter, partner string) (Resolution, error) {
	entry, err := r.rates.FindRate(ctx, reporter, partner)
	if err != nil {
		return Resolution{}, err
	}

	pref := fta.IsPreferential(reporter, partner)
	typ := model.MFN
	if pref {
		typ = model.AHS
	}
	rate := entry.Rate(typ)
	if !rate.Valid {
		return Resolution{}, errs.NotFound(fmt.Sprintf("%s rate not available for country: %s, partner: %s", typ, reporter, partner))
	}
	return Resolution{Type: typ, Rate: rate.Decimal, Preferential: pref}, nil
}

// ListDefinitions emits one definition per (product, rate entry) when the
// route is preferential or the AHS and MFN rates coincide. Other rows are
// omitted. Ids are sequential within one listing.
func (r *Registry) ListDefinitions(ctx context.Context, products []string) ([]model.TariffDefinition, error) {
	entries, err := r.rates.ListRates(ctx)
	if err != nil {
		return nil, err
	}

	defs := []model.TariffDefinition{}
	next := 1
	for _, product := range products {
		for _, e := range entries {
			pref := fta.IsPreferential(e.Country, e.Partner)
			if !pref && !ratesCoincide(e) {
				continue
			}
			typ := model.MFN
			if pref {
				typ = model.AHS
			}
			rate := e.Rate(typ)
			if !rate.Valid {
				continue
			}
			defs = append(defs, model.TariffDefinition{
				ID:             strconv.Itoa(next),
				Product:        product,
				ExportingFrom:  e.Partner,
				ImportingTo:    e.Country,
				Type:           typ,
				Rate:           rate.Decimal,
				EffectiveDate:  listedEffectiveDate,
				ExpirationDate: listedExpirationDate,
			})
			next++
		}
	}
	return defs, nil
}

func ratesCoincide(e model.RateEntry) bool {
	return e.AHSWeighted.Valid && e.MFNWeighted.Valid && e.AHSWeighted.Decimal.Equal(e.MFNWeighted.Decimal)
}

// AddAdminOverride writes the requested rate for (importingTo,
// exportingFrom), creating the entry if needed. On a new entry, or when the
// other rate is null or zero, the same rate is mirrored into the other
// field.
func (r *Registry) AddAdminOverride(ctx context.Context, req OverrideRequest) (model.TariffDefinition, error) {
	typ, err := validate(req)
	if err != nil {
		return model.TariffDefinition{}, err
	}

	entry, err := r.rates.FindRate(ctx, req.ImportingTo, req.ExportingFrom)
	created := false
	switch {
	case errs.IsNotFound(err):
		created = true
		entry = &model.RateEntry{
			Country:     req.ImportingTo,
			Partner:     req.ExportingFrom,
			AHSWeighted: decimal.NewNullDecimal(decimal.Zero),
			MFNWeighted: decimal.NewNullDecimal(decimal.Zero),
		}
	case err != nil:
		return model.TariffDefinition{}, err
	}

	entry.SetRate(typ, req.Rate)
	other := otherType(typ)
	if cur := entry.Rate(other); created || !cur.Valid || cur.Decimal.IsZero() {
		entry.SetRate(other, req.Rate)
	}

	if err := r.rates.SaveRate(ctx, entry); err != nil {
		return model.TariffDefinition{}, err
	}

	def := definitionFor(entry, typ, req)
	r.index.Upsert(def)
	r.changed("created", def)
	slog.Info("admin override saved",
		"id", def.ID,
		"type", typ,
		"rate", req.Rate.String(),
		"new_entry", created,
	)
	return def, nil
}

// UpdateAdminOverride sets only the rate named by req.Type on an existing
// entry. Nothing is mirrored.
func (r *Registry) UpdateAdminOverride(ctx context.Context, id string, req OverrideRequest) (model.TariffDefinition, error) {
	typ, err := validate(req)
	if err != nil {
		return model.TariffDefinition{}, err
	}
	country, partner, err := ParseAdminID(id)
	if err != nil {
		return model.TariffDefinition{}, err
	}

	entry, err := r.rates.FindRate(ctx, country, partner)
	if errs.IsNotFound(err) {
		return model.TariffDefinition{}, notFoundFor(country, partner)
	}
	if err != nil {
		return model.TariffDefinition{}, err
	}

	entry.SetRate(typ, req.Rate)
	if err := r.rates.SaveRate(ctx, entry); err != nil {
		return model.TariffDefinition{}, err
	}

	def := definitionFor(entry, typ, req)
	r.index.Upsert(def)
	r.changed("updated", def)
	return def, nil
}

// DeleteAdminOverride removes the rate entry addressed by id.
func (r *Registry) DeleteAdminOverride(ctx context.Context, id string) error {
	country, partner, err := ParseAdminID(id)
	if err != nil {
		return err
	}

	if _, err := r.rates.FindRate(ctx, country, partner); errs.IsNotFound(err) {
		return notFoundFor(country, partner)
	} else if err != nil {
		return err
	}

	if err := r.rates.DeleteRate(ctx, country, partner); err != nil {
		return err
	}
	r.index.Remove(id)
	r.changed("deleted", model.TariffDefinition{ID: id, ImportingTo: country, ExportingFrom: partner})
	return nil
}

// AdminOverrides returns the overrides written through this process.
func (r *Registry) AdminOverrides() []model.TariffDefinition {
	return r.index.List()
}

// Countries returns the distinct reporting countries.
func (r *Registry) Countries(ctx context.Context) ([]string, error) {
	return r.rates.DistinctCountries(ctx)
}

// Partners returns the distinct partner countries.
func (r *Registry) Partners(ctx context.Context) ([]string, error) {
	return r.rates.DistinctPartners(ctx)
}

// AdminID builds the id of an admin definition.
func AdminID(importingTo, exportingFrom string) string {
	return importingTo + "_" + exportingFrom
}

// ParseAdminID splits an admin id into (importingTo, exportingFrom). Ids
// with any number of '_' other than one are rejected, so country names
// containing '_' cannot be addressed.
func ParseAdminID(id string) (string, string, error) {
	parts := strings.Split(id, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errs.Validation("Invalid tariff ID format")
	}
	return parts[0], parts[1], nil
}

func validate(req OverrideRequest) (model.TariffType, error) {
	if strings.TrimSpace(req.ImportingTo) == "" {
		return "", errs.Validation("Importing country is required")
	}
	if strings.TrimSpace(req.ExportingFrom) == "" {
		return "", errs.Validation("Exporting country is required")
	}
	if strings.TrimSpace(req.Type) == "" {
		return "", errs.Validation("Tariff type is required")
	}
	typ := model.TariffType(strings.TrimSpace(req.Type))
	if !typ.Valid() {
		return "", errs.Validation("Tariff type must be either 'AHS' or 'MFN'")
	}
	if req.Rate.IsNegative() {
		return "", errs.Validation("Tariff rate cannot be negative")
	}
	return typ, nil
}

func otherType(t model.TariffType) model.TariffType {
	if t == model.AHS {
		return model.MFN
	}
	return model.AHS
}

func definitionFor(e *model.RateEntry, typ model.TariffType, req OverrideRequest) model.TariffDefinition {
	effective := req.EffectiveDate
	if effective == "" {
		effective = defaultEffectiveDate
	}
	expiration := req.ExpirationDate
	if expiration == "" {
		expiration = listedExpirationDate
	}
	return model.TariffDefinition{
		ID:             AdminID(e.Country, e.Partner),
		Product:        req.Product,
		ExportingFrom:  e.Partner,
		ImportingTo:    e.Country,
		Type:           typ,
		Rate:           e.Rate(typ).Decimal,
		EffectiveDate:  effective,
		ExpirationDate: expiration,
	}
}

func notFoundFor(country, partner string) error {
	return errs.NotFound(fmt.Sprintf("Tariff definition not found for country: %s, partner: %s", country, partner))
}

func (r *Registry) changed(op string, def model.TariffDefinition) {
	metrics.AdminOverrideWrites.WithLabelValues(op).Inc()
	if r.notifier != nil {
		r.notifier.OverrideChanged(op, def)
	}
}
