package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recall-ingest/internal/recall"
)

func candidate(title string, source recall.Source, date, category string) recall.Candidate {
	return recall.Candidate{
		Title:       title,
		ProductName: title,
		Brand:       recall.StringPtr("Acme"),
		Category:    category,
		RecallDate:  date,
		RiskLevel:   recall.RiskHigh,
		Source:      source,
	}
}

func TestRecallStoreInsertAndFind(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecallStore()
	id, err := store.Insert(ctx, candidate("Peanut Butter", recall.SourceFDA, "2024-03-01", "Food & Beverages"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, found, err := store.FindByTitleAndSource(ctx, "Peanut Butter", recall.SourceFDA)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, id, got)

	_, found, err = store.FindByTitleAndSource(ctx, "Peanut Butter", recall.SourceCPSC)
	require.NoError(t, err)
	require.False(t, found)

	_, err = store.Insert(ctx, candidate("Peanut Butter", recall.SourceFDA, "2024-03-02", "Food & Beverages"))
	require.ErrorIs(t, err, recall.ErrDuplicate)
	require.Len(t, store.Recalls(), 1)
	require.NoError(t, store.Ping(ctx))
}

func TestRecallStoreQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecallStore()
	for _, c := range []recall.Candidate{
		candidate("Peanut Butter", recall.SourceFDA, "2024-03-01", "Food & Beverages"),
		candidate("Baby Stroller", recall.SourceCPSC, "2024-05-14", "Toys & Children's Products"),
		candidate("Brake failure", recall.SourceNHTSA, "2024-04-01", "Vehicles"),
	} {
		_, err := store.Insert(ctx, c)
		require.NoError(t, err)
	}

	all, err := store.Query(ctx, recall.Filters{}, recall.DefaultOrdering, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"Baby Stroller", "Brake failure", "Peanut Butter"}, titles(all))

	limited, err := store.Query(ctx, recall.Filters{}, recall.DefaultOrdering, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"Baby Stroller"}, titles(limited))

	search, err := store.Query(ctx, recall.Filters{Search: "BUTTER"}, recall.DefaultOrdering, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Peanut Butter"}, titles(search))

	byCategory, err := store.Query(ctx, recall.Filters{Category: "Vehicles"}, recall.DefaultOrdering, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Brake failure"}, titles(byCategory))

	byBrand, err := store.Query(ctx, recall.Filters{Search: "acme", Source: recall.SourceCPSC}, recall.DefaultOrdering, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"Baby Stroller"}, titles(byBrand))

	_, err = store.Query(ctx, recall.Filters{}, recall.Ordering{Field: "brand"}, 10)
	require.Error(t, err)
}

func TestAlertPreferenceUpsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRecallStore()
	require.NoError(t, store.UpsertAlertPreference(ctx, recall.AlertPreference{Email: "a@example.com", Categories: []string{"Vehicles"}}))
	require.NoError(t, store.UpsertAlertPreference(ctx, recall.AlertPreference{Email: "b@example.com"}))

	vehicles, err := store.ListActiveAlertPreferences(ctx, "Vehicles")
	require.NoError(t, err)
	require.Len(t, vehicles, 2)
	require.Nil(t, vehicles[1].Categories)

	food, err := store.ListActiveAlertPreferences(ctx, "Food & Beverages")
	require.NoError(t, err)
	require.Len(t, food, 1)
	require.Equal(t, "b@example.com", food[0].Email)

	first := vehicles[0]
	require.NoError(t, store.UpsertAlertPreference(ctx, recall.AlertPreference{Email: "a@example.com", Categories: []string{"Food & Beverages"}}))
	updated, err := store.ListActiveAlertPreferences(ctx, "Food & Beverages")
	require.NoError(t, err)
	require.Len(t, updated, 2)
	require.Equal(t, first.ID, updated[0].ID)
	require.Equal(t, first.CreatedAt, updated[0].CreatedAt)
}

func titles(rs []recall.StoredRecall) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Title)
	}
	return out
}
