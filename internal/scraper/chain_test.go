package scraper

import (
	"context"
	"testing"

	"github.com/maltedev/shopee-price-tracker/internal/metrics"
	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_FirstSuccessWins(t *testing.T) {
	first := &stubStrategy{name: "first", rec: &models.ProductRecord{Name: "From First", Price: 100}}
	second := &stubStrategy{name: "second", rec: &models.ProductRecord{Name: "From Second", Price: 200}}

	chain := NewChain(NewNormalizer(DefaultOptions(), testClock), nil, testLogger(), first, second)
	rec, ok := chain.Extract(context.Background(), &Document{URL: adidasURL}, models.ParsedIDs{ItemID: "27785404088"})

	require.True(t, ok)
	assert.Equal(t, "From First", rec.Name)
	assert.Equal(t, "first", rec.Source)
	assert.Equal(t, adidasURL, rec.URL)
	assert.Equal(t, "27785404088", rec.ProductID)
	assert.Equal(t, fixedNow, rec.Timestamp)
	assert.Equal(t, 0, second.calls, "no strategy runs after a valid record")
}

func TestChain_ValidationErrorIsMiss(t *testing.T) {
	tests := []struct {
		name string
		rec  *models.ProductRecord
	}{
		{"empty name", &models.ProductRecord{Name: "   ", Price: 100}},
		{"price at lower bound", &models.ProductRecord{Name: "Cheap", Price: 10}},
		{"price below lower bound", &models.ProductRecord{Name: "Cheap", Price: 3}},
		{"price at upper bound", &models.ProductRecord{Name: "Pricey", Price: 1_000_000}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			bad := &stubStrategy{name: "bad", rec: tt.rec}
			good := &stubStrategy{name: "good", rec: &models.ProductRecord{Name: "Fallback", Price: 50}}

			reg := metrics.NewRegistry()
			chain := NewChain(NewNormalizer(DefaultOptions(), testClock), reg, testLogger(), bad, good)
			rec, ok := chain.Extract(context.Background(), &Document{URL: adidasURL}, models.ParsedIDs{})

			require.True(t, ok)
			assert.Equal(t, "good", rec.Source)
			assert.Equal(t, 1.0, testutil.ToFloat64(reg.StrategyMisses.WithLabelValues("bad")))
			assert.Equal(t, 1.0, testutil.ToFloat64(reg.StrategyHits.WithLabelValues("good")))
		})
	}
}

func TestChain_Exhausted(t *testing.T) {
	chain := NewChain(NewNormalizer(DefaultOptions(), testClock), nil, testLogger(),
		&stubStrategy{name: "a"}, &stubStrategy{name: "b"})

	rec, ok := chain.Extract(context.Background(), &Document{URL: adidasURL}, models.ParsedIDs{})
	assert.False(t, ok)
	assert.Nil(t, rec)
	assert.Equal(t, []string{"a", "b"}, chain.Names())
}

func TestChain_StopsOnCancellation(t *testing.T) {
	s := &stubStrategy{name: "a", rec: &models.ProductRecord{Name: "x", Price: 100}}
	chain := NewChain(NewNormalizer(DefaultOptions(), testClock), nil, testLogger(), s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := chain.Extract(ctx, &Document{URL: adidasURL}, models.ParsedIDs{})
	assert.False(t, ok)
	assert.Equal(t, 0, s.calls)
}

func TestDefaultChainOrder(t *testing.T) {
	chain := NewDefaultChain(DefaultOptions(), newTestFetcher(&siteMux{}), NewNormalizer(DefaultOptions(), testClock), nil, testLogger())
	assert.Equal(t, []string{"private_api", "structured_data", "embedded_state", "markup"}, chain.Names())
}

func TestDefaultChain_PrivateAPIBeatsStructuredData(t *testing.T) {
	site := &siteMux{apiBody: `{"data":{"name":"adidas Clog","price":249900000,"discount":38}}`}
	page := []byte(`<html><head><script type="application/ld+json">
		{"@type":"Product","name":"JSON-LD Clog","offers":{"price":"1999"}}
	</script></head></html>`)

	opts := DefaultOptions()
	chain := NewDefaultChain(opts, newTestFetcher(site), NewNormalizer(opts, testClock), nil, testLogger())
	ids := models.ParsedIDs{ShopID: "319506484", ItemID: "27785404088"}

	rec, ok := chain.Extract(context.Background(), &Document{URL: adidasURL, Body: page}, ids)
	require.True(t, ok)
	assert.Equal(t, "private_api", rec.Source)
	assert.Equal(t, "adidas Clog", rec.Name)

	site.apiStatus = 403
	rec, ok = chain.Extract(context.Background(), &Document{URL: adidasURL, Body: page}, ids)
	require.True(t, ok)
	assert.Equal(t, "structured_data", rec.Source)
	assert.Equal(t, "JSON-LD Clog", rec.Name)
}
