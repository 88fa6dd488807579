package competitor

import (
	"context"

	"github.com/sells-group/map-review/internal/model"
)

// Amazon is a placeholder source. It makes no network calls; every lookup
// records "Coming soon" so the persisted rows already have the final shape
// when a real product-advertising integration lands.
type Amazon struct{}

func NewAmazon() *Amazon { return &Amazon{} }

func (a *Amazon) Name() model.PriceSource { return model.SourceAmazon }

func (a *Amazon) Lookup(_ context.Context, _ string) Result {
	return Result{Currency: "USD", Err: "Coming soon"}
}
