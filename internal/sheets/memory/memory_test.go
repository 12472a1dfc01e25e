package memory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxdesk/internal/core"
)

func TestStoreExportReplacesByKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Export(ctx, core.IncomeSummary{UserID: "u2", TaxYear: 2025, TotalIncome: decimal.NewFromInt(1)}))
	require.NoError(t, s.Export(ctx, core.IncomeSummary{UserID: "u1", TaxYear: 2025, TotalIncome: decimal.NewFromInt(2)}))
	require.NoError(t, s.Export(ctx, core.IncomeSummary{UserID: "u1", TaxYear: 2025, TotalIncome: decimal.NewFromInt(3)}))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "u1", list[0].UserID)
	assert.True(t, list[0].TotalIncome.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, 3, s.Exports())

	_, ok := s.Get(core.Key{UserID: "u3", TaxYear: 2025})
	assert.False(t, ok)
	assert.Equal(t, "memory", s.Name())
}
