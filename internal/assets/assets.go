// Package assets holds the fixed OTC instrument catalogue.
package assets

import (
	"strings"

	"github.com/navid-fn/tanix/internal/model"
	"github.com/shopspring/decimal"
)

// CategoryOTC is the only category the catalogue serves.
const CategoryOTC = "otc"

// DefaultInitialPrice is used when an asset price is missing or malformed.
const DefaultInitialPrice = 100.0

var catalog = []model.Asset{
	otc("OTC-AAPL", "OTC: AAPL", "189.42", "+0.35%", "positive", 81),
	otc("OTC-TSLA", "OTC: TSLA", "242.74", "-0.80%", "negative", 88),
	otc("OTC-MSFT", "OTC: MSFT", "312.18", "+0.22%", "positive", 87),
	otc("OTC-GOOG", "OTC: GOOGL", "132.11", "+0.48%", "positive", 86),
	otc("OTC-NFLX", "OTC: NFLX", "406.92", "-1.12%", "negative", 85),
	otc("OTC-AMZN", "OTC: AMZN", "128.14", "+0.62%", "positive", 87),
	otc("OTC-BABA", "OTC: BABA", "84.52", "+0.15%", "positive", 84),
	otc("OTC-NVDA", "OTC: NVDA", "442.37", "+1.20%", "positive", 89),
	otc("OTC-INTC", "OTC: INTC", "46.08", "-0.40%", "negative", 83),
}

// index resolves both ids and display names.
var index = func() map[string]model.Asset {
	m := make(map[string]model.Asset, 2*len(catalog))
	for _, a := range catalog {
		m[a.ID] = a
		m[a.Name] = a
	}
	return m
}()

func otc(id, name, price, change, changeType string, payout int) model.Asset {
	return model.Asset{
		ID:         id,
		Name:       name,
		Price:      price,
		Change:     change,
		ChangeType: changeType,
		Payout:     payout,
		Category:   CategoryOTC,
		IsOTC:      true,
	}
}

// Find looks an asset up by id or display name.
func Find(idOrName string) (model.Asset, bool) {
	if idOrName == "" {
		return model.Asset{}, false
	}
	a, ok := index[idOrName]
	return a, ok
}

// Catalog returns the whole catalogue keyed by category.
func Catalog() map[string][]model.Asset {
	return map[string][]model.Asset{CategoryOTC: List()}
}

// List returns a copy of the OTC assets in catalogue order.
func List() []model.Asset {
	out := make([]model.Asset, len(catalog))
	copy(out, catalog)
	return out
}

// ByCategory returns the assets of category, matched case-insensitively.
// Unknown categories yield an empty slice.
func ByCategory(category string) []model.Asset {
	if strings.ToLower(strings.TrimSpace(category)) != CategoryOTC {
		return []model.Asset{}
	}
	return List()
}

// InitialPrice parses the asset's display price, ignoring thousands
// separators. A missing or malformed price yields DefaultInitialPrice.
func InitialPrice(a model.Asset) float64 {
	raw := strings.ReplaceAll(strings.TrimSpace(a.Price), ",", "")
	if raw == "" {
		return DefaultInitialPrice
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return DefaultInitialPrice
	}
	return d.InexactFloat64()
}
