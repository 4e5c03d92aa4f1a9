package fundfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewFundStore(common.NewSilentLogger(), t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveAndGetFund(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	data := &models.FundData{
		Code: "210014",
		Records: []models.NAVRecord{
			{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), UnitNAV: 1.0, CumulativeNAV: 1.0},
			{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), UnitNAV: 1.01, CumulativeNAV: 1.01, DividendRaw: "每份派现金0.05元"},
		},
	}

	require.False(t, store.HasFund(ctx, "210014"))
	require.NoError(t, store.SaveFund(ctx, data))
	assert.True(t, store.HasFund(ctx, "210014"))
	assert.False(t, data.LastUpdated.IsZero())

	got, err := store.GetFund(ctx, "210014")
	require.NoError(t, err)
	assert.Equal(t, "210014", got.Code)
	require.Len(t, got.Records, 2)
	assert.Equal(t, 1.01, got.Records[1].UnitNAV)
	assert.Equal(t, "每份派现金0.05元", got.Records[1].DividendRaw)

	first, last := got.DateRange()
	assert.Equal(t, "2024-01-02", first.Format("2006-01-02"))
	assert.Equal(t, "2024-01-03", last.Format("2006-01-02"))
}

func TestGetFundNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetFund(context.Background(), "999999")
	assert.Error(t, err)
}

func TestListFunds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	codes, err := store.ListFunds(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)

	for _, code := range []string{"210014", "110022"} {
		require.NoError(t, store.SaveFund(ctx, &models.FundData{Code: code}))
	}

	codes, err = store.ListFunds(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"210014", "110022"}, codes)
}

func TestSaveAndGetFees(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fees := &models.FundFees{
		Code:          "210014",
		ManagementPct: 1.5,
		CustodyPct:    0.25,
		RedemptionTiers: []models.FeeTier{
			{Condition: "小于7天", RatePct: 1.5},
		},
		LastUpdated: time.Now(),
	}
	require.NoError(t, store.SaveFees(ctx, fees))

	got, err := store.GetFees(ctx, "210014")
	require.NoError(t, err)
	assert.Equal(t, 1.5, got.ManagementPct)
	require.Len(t, got.RedemptionTiers, 1)
	assert.Equal(t, "小于7天", got.RedemptionTiers[0].Condition)

	// Fees and NAV history live in separate namespaces.
	assert.False(t, store.HasFund(ctx, "210014"))
}

func TestSaveFundOverwritesAtomically(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveFund(ctx, &models.FundData{Code: "210014", Records: make([]models.NAVRecord, 1)}))
	require.NoError(t, store.SaveFund(ctx, &models.FundData{Code: "210014", Records: make([]models.NAVRecord, 5)}))

	got, err := store.GetFund(ctx, "210014")
	require.NoError(t, err)
	assert.Len(t, got.Records, 5)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(store.DataPath(), "nav"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSanitizeKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Path-traversal characters in a code must not escape the store dir.
	require.NoError(t, store.SaveFund(ctx, &models.FundData{Code: "../evil"}))
	codes, err := store.ListFunds(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.NotContains(t, codes[0], "/")
}
