package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pickflow-backend/internal/providers"
	"github.com/angelmondragon/pickflow-backend/internal/quotes"
	"github.com/angelmondragon/pickflow-backend/pkg/db/models"
)

func TestCombineDuplicateLinesSumsByName(t *testing.T) {
	lines := []providers.RemoteLine{
		line("1", "Widget", 3),
		{Kind: providers.LineKindSubtotal, Qty: decimal.Zero},
		line("9", "widget ", 4),
		line("2", "Gadget", 1),
	}

	out, combined := CombineDuplicateLines(lines)
	require.Len(t, out, 3)
	assert.Equal(t, "1", out[0].RemoteItemID)
	assert.True(t, out[0].Qty.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, providers.LineKindSubtotal, out[1].Kind)
	assert.Equal(t, "Gadget", out[2].ItemName)

	require.Len(t, combined, 1)
	assert.Equal(t, "Widget", combined[0].Name)
	assert.Equal(t, 2, combined[0].Lines)
	assert.Equal(t, "7", combined[0].Qty.String())
}

func TestCombineDuplicateLinesLeavesDistinctLines(t *testing.T) {
	lines := []providers.RemoteLine{line("1", "Widget", 1), line("2", "Gadget", 2)}
	out, combined := CombineDuplicateLines(lines)
	assert.Equal(t, lines, out)
	assert.Empty(t, combined)
}

func TestDiffItems(t *testing.T) {
	stored := []models.QuoteItem{
		{ProductID: productFor("1"), Name: "Widget", OriginalQty: 2},
		{ProductID: productFor("2"), Name: "Gadget", OriginalQty: 1},
		{ProductID: productFor("3"), Name: "Sprocket", OriginalQty: 4},
	}
	incoming := []quotes.ProductLine{
		{ProductID: productFor("1"), Name: "Widget", OriginalQty: 5},
		{ProductID: productFor("2"), Name: "Gadget", OriginalQty: 1},
		{ProductID: productFor("4"), Name: "Cog", OriginalQty: 1},
	}

	diff := DiffItems(stored, incoming)
	assert.Equal(t, []string{"Cog"}, diff.Added)
	assert.Equal(t, []string{"Sprocket"}, diff.Removed)
	assert.Equal(t, []QuantityChange{{Name: "Widget", From: 2, To: 5}}, diff.QuantityChanges)
	assert.False(t, diff.Empty())
	assert.True(t, DiffItems(nil, nil).Empty())
}
