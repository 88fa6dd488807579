// Package competitor looks up current retail prices for a product by UPC.
package competitor

import (
	"context"
	"time"

	"github.com/sells-group/map-review/internal/model"
)

// Result is one source's answer for a UPC. Err is a user-facing message,
// empty on success. A result with a nil Price and a non-empty Err is still
// persisted so the end user sees why the price is missing.
type Result struct {
	Price      *float64
	Currency   string
	ListingURL string
	ScrapedAt  *time.Time
	Err        string
}

// Source is one competing retailer. Lookup never returns a Go error;
// failures degrade into Result.Err so one broken source cannot abort an
// assessment.
type Source interface {
	Name() model.PriceSource
	Lookup(ctx context.Context, upc string) Result
}

// ToPrice converts a lookup result into the persisted record shape.
func ToPrice(source model.PriceSource, res Result) model.CompetitorPrice {
	p := model.CompetitorPrice{
		Source:    source,
		Price:     res.Price,
		Currency:  res.Currency,
		ScrapedAt: res.ScrapedAt,
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if res.ListingURL != "" {
		url := res.ListingURL
		p.ListingURL = &url
	}
	if res.Err != "" {
		msg := res.Err
		p.ErrorMessage = &msg
	}
	return p
}
