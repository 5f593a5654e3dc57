package reconciler

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
)

// Combination records item lines folded into one because they name the same product.
type Combination struct {
	Name  string          `json:"name"`
	Lines int             `json:"lines"`
	Qty   decimal.Decimal `json:"qty"`
}

// CombineDuplicateLines folds item lines sharing a product name into the first
// of them, summing quantities. Other lines and line order are kept.
func CombineDuplicateLines(lines []providers.RemoteLine) ([]providers.RemoteLine, []Combination) {
	out := make([]providers.RemoteLine, 0, len(lines))
	index := map[string]int{}
	counts := map[string]int{}
	var order []string

	for _, line := range lines {
		if line.Kind != providers.LineKindItem {
			out = append(out, line)
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line.DisplayName()))
		if i, ok := index[key]; ok {
			out[i].Qty = out[i].Qty.Add(line.Qty)
			counts[key]++
			continue
		}
		index[key] = len(out)
		counts[key] = 1
		order = append(order, key)
		out = append(out, line)
	}

	var combined []Combination
	for _, key := range order {
		if counts[key] < 2 {
			continue
		}
		line := out[index[key]]
		combined = append(combined, Combination{Name: line.DisplayName(), Lines: counts[key], Qty: line.Qty})
	}
	return out, combined
}

// QuantityChange is a product whose ordered quantity moved.
type QuantityChange struct {
	Name string `json:"name"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

// ItemDiff classifies how an incoming quote differs from the stored one.
type ItemDiff struct {
	Added           []string         `json:"added"`
	Removed         []string         `json:"removed"`
	QuantityChanges []QuantityChange `json:"quantity_changes"`
}

func (d ItemDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.QuantityChanges) == 0
}

// DiffItems compares stored items with the incoming product lines by product.
func DiffItems(stored []models.QuoteItem, incoming []quotes.ProductLine) ItemDiff {
	var diff ItemDiff
	existing := make(map[uuid.UUID]models.QuoteItem, len(stored))
	for _, item := range stored {
		existing[item.ProductID] = item
	}
	seen := make(map[uuid.UUID]struct{}, len(incoming))
	for _, line := range incoming {
		seen[line.ProductID] = struct{}{}
		item, ok := existing[line.ProductID]
		if !ok {
			diff.Added = append(diff.Added, line.Name)
			continue
		}
		if item.OriginalQty != line.OriginalQty {
			diff.QuantityChanges = append(diff.QuantityChanges, QuantityChange{Name: line.Name, From: item.OriginalQty, To: line.OriginalQty})
		}
	}
	for _, item := range stored {
		if _, ok := seen[item.ProductID]; !ok {
			diff.Removed = append(diff.Removed, item.Name)
		}
	}
	return diff
}
