package competitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/map-review/internal/model"
)

func TestAmazon_Lookup(t *testing.T) {
	a := NewAmazon()
	assert.Equal(t, model.SourceAmazon, a.Name())

	res := a.Lookup(context.Background(), "012345678905")
	assert.Nil(t, res.Price)
	assert.Empty(t, res.ListingURL)
	assert.Nil(t, res.ScrapedAt)
	assert.Equal(t, "Coming soon", res.Err)
}

func TestToPrice_Success(t *testing.T) {
	price := 42.99
	now := time.Now().UTC()

	p := ToPrice(model.SourceWalmart, Result{
		Price:      &price,
		Currency:   "USD",
		ListingURL: "https://www.walmart.com/search?q=012345678905",
		ScrapedAt:  &now,
	})

	assert.Equal(t, model.SourceWalmart, p.Source)
	require.NotNil(t, p.Price)
	assert.Equal(t, 42.99, *p.Price)
	require.NotNil(t, p.ListingURL)
	assert.Equal(t, "https://www.walmart.com/search?q=012345678905", *p.ListingURL)
	assert.Nil(t, p.ErrorMessage)
	assert.Equal(t, &now, p.ScrapedAt)
}

func TestToPrice_FailureAndDefaults(t *testing.T) {
	p := ToPrice(model.SourceAmazon, Result{Err: "Coming soon"})

	assert.Equal(t, model.SourceAmazon, p.Source)
	assert.Nil(t, p.Price)
	assert.Nil(t, p.ListingURL)
	assert.Nil(t, p.ScrapedAt)
	assert.Equal(t, "USD", p.Currency)
	require.NotNil(t, p.ErrorMessage)
	assert.Equal(t, "Coming soon", *p.ErrorMessage)
}
