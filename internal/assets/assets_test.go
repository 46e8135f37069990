package assets

import (
	"testing"

	"github.com/navid-fn/tanix/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind(t *testing.T) {
	tests := []struct {
		query  string
		wantID string
		found  bool
	}{
		{"OTC-AAPL", "OTC-AAPL", true},
		{"OTC: GOOGL", "OTC-GOOG", true},
		{"OTC-GOOGL", "", false},
		{"otc-aapl", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			a, ok := Find(tt.query)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, a.ID)
		})
	}
}

func TestCatalogShape(t *testing.T) {
	all := Catalog()
	require.Len(t, all, 1)
	require.Len(t, all[CategoryOTC], 9)

	for _, a := range all[CategoryOTC] {
		assert.True(t, a.IsOTC)
		assert.Equal(t, CategoryOTC, a.Category)
		assert.GreaterOrEqual(t, a.Payout, 81)
		assert.LessOrEqual(t, a.Payout, 89)
	}
	assert.Equal(t, "OTC-AAPL", all[CategoryOTC][0].ID)
	assert.Equal(t, "OTC-INTC", all[CategoryOTC][8].ID)
}

func TestListIsACopy(t *testing.T) {
	l := List()
	l[0].Price = "0"
	a, _ := Find("OTC-AAPL")
	assert.Equal(t, "189.42", a.Price)
}

func TestByCategory(t *testing.T) {
	assert.Len(t, ByCategory(" OTC "), 9)
	assert.Empty(t, ByCategory("crypto"))
	assert.Empty(t, ByCategory(""))
}

func TestInitialPrice(t *testing.T) {
	tests := []struct {
		price string
		want  float64
	}{
		{"189.42", 189.42},
		{"1,234.50", 1234.5},
		{"", DefaultInitialPrice},
		{"n/a", DefaultInitialPrice},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InitialPrice(model.Asset{Price: tt.price}), tt.price)
	}
}
