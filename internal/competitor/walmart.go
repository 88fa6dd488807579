package competitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/map-review/internal/model"
)

const (
	walmartSearchBase = "https://www.walmart.com/search"
	walmartTimeout    = 8 * time.Second
	walmartBodyLimit  = 1024 * 1024

	walmartUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	walmartAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
)

// Walmart tries two price patterns in the search results page. The page
// markup has no stable contract, so a parse miss is an expected outcome
// and the search URL is always returned for the user to follow by hand.
var (
	walmartJSONPriceRe   = regexp.MustCompile(`"currentPrice"\s*:\s*(\d+\.?\d*)`)
	walmartDollarPriceRe = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
)

// Walmart scrapes walmart.com search results for a UPC's current price.
type Walmart struct {
	client  *http.Client
	baseURL string
}

// NewWalmart creates a Walmart source. An empty baseURL uses walmart.com
// and a zero timeout uses the 8 second default.
func NewWalmart(baseURL string, timeout time.Duration) *Walmart {
	if baseURL == "" {
		baseURL = walmartSearchBase
	}
	if timeout == 0 {
		timeout = walmartTimeout
	}
	return &Walmart{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (w *Walmart) Name() model.PriceSource { return model.SourceWalmart }

func (w *Walmart) Lookup(ctx context.Context, upc string) Result {
	listingURL := fmt.Sprintf("%s?q=%s", w.baseURL, url.QueryEscape(upc))
	now := time.Now().UTC()
	res := Result{Currency: "USD", ListingURL: listingURL, ScrapedAt: &now}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		res.Err = "Could not reach Walmart."
		return res
	}
	req.Header.Set("User-Agent", walmartUserAgent)
	req.Header.Set("Accept", walmartAccept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			res.Err = "Request timed out."
		} else {
			res.Err = "Could not reach Walmart."
		}
		return res
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Sprintf("Walmart returned %d. Price unavailable.", resp.StatusCode)
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, walmartBodyLimit))
	if err != nil {
		if isTimeout(err) {
			res.Err = "Request timed out."
		} else {
			res.Err = "Could not reach Walmart."
		}
		return res
	}

	if price, ok := parseWalmartPrice(string(body)); ok {
		res.Price = &price
		return res
	}

	res.Err = "Price not found on page. Link to search below."
	return res
}

// parseWalmartPrice tries the embedded JSON price first, then any dollar
// amount in the page.
func parseWalmartPrice(html string) (float64, bool) {
	if m := walmartJSONPriceRe.FindStringSubmatch(html); m != nil {
		if price, err := strconv.ParseFloat(m[1], 64); err == nil && price > 0 {
			return price, true
		}
	}
	if m := walmartDollarPriceRe.FindStringSubmatch(html); m != nil {
		raw := strings.ReplaceAll(m[1], ",", "")
		if price, err := strconv.ParseFloat(raw, 64); err == nil && price > 0 {
			return price, true
		}
	}
	return 0, false
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
