package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech1ee/finuts/internal/common"
	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/service"
)

func testStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTxn(id string, day int, amount int64, desc string) model.ImportedTransaction {
	txn := model.ImportedTransaction{
		ID:          id,
		Date:        time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC),
		Amount:      amount,
		Description: desc,
		AccountID:   "acc-1",
		ParseSource: model.ParseSourceRule,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

func TestSaveAndQueryTransactions(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	txns := []model.ImportedTransaction{
		sampleTxn("t1", 15, -123456, "MAGNUM ALMATY"),
		sampleTxn("t2", 16, -89000, "WOLT DELIVERY"),
		sampleTxn("t3", 20, 25000000, "SALARY"),
	}
	require.NoError(t, s.SaveTransactions(ctx, txns))

	got, err := s.QueryExistingTransactions(ctx, service.DateWindow{
		Start: time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, int64(-123456), got[0].Amount)
	assert.Equal(t, "MAGNUM ALMATY", got[0].Description)
	assert.Equal(t, model.ParseSourceRule, got[0].ParseSource)
}

func TestSaveTransactionsSkipsExistingHash(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	txn := sampleTxn("t1", 15, -123456, "MAGNUM ALMATY")
	require.NoError(t, s.SaveTransactions(ctx, []model.ImportedTransaction{txn}))

	// Same content under a new ID hashes identically and is skipped.
	dup := txn
	dup.ID = "t1-again"
	dup.Hash = dup.GenerateHash()
	require.NoError(t, s.SaveTransactions(ctx, []model.ImportedTransaction{dup}))

	got, err := s.QueryExistingTransactions(ctx, service.DateWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSaveTransactionsRunningBalance(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	balance := int64(500000)
	txn := sampleTxn("t1", 15, -123456, "MAGNUM ALMATY")
	txn.RunningBalance = &balance
	require.NoError(t, s.SaveTransactions(ctx, []model.ImportedTransaction{txn}))

	got, err := s.QueryExistingTransactions(ctx, service.DateWindow{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].RunningBalance)
	assert.Equal(t, int64(500000), *got[0].RunningBalance)
}

func TestLearnedMerchantUpsert(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	merchant := model.LearnedMerchant{
		Pattern:     "magnum",
		Category:    "groceries",
		Source:      model.LearnedFromUser,
		SampleCount: 1,
		Confidence:  0.82,
		LastUsedAt:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.UpsertLearnedMerchant(ctx, merchant))

	merchant.SampleCount = 2
	merchant.Confidence = 0.84
	require.NoError(t, s.UpsertLearnedMerchant(ctx, merchant))

	got, err := s.GetLearnedMerchants(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "magnum", got[0].Pattern)
	assert.Equal(t, 2, got[0].SampleCount)
	assert.InDelta(t, 0.84, got[0].Confidence, 1e-9)
	assert.Equal(t, model.LearnedFromUser, got[0].Source)
}

func TestUpsertLearnedMerchantRequiresPattern(t *testing.T) {
	s := testStorage(t)
	err := s.UpsertLearnedMerchant(context.Background(), model.LearnedMerchant{Category: "groceries"})
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestListCategoriesSeeded(t *testing.T) {
	s := testStorage(t)

	categories, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, categories)

	names := make(map[string]model.CategoryType, len(categories))
	for _, c := range categories {
		names[c.Name] = c.Type
	}
	assert.Equal(t, model.CategoryTypeExpense, names["groceries"])
	assert.Equal(t, model.CategoryTypeIncome, names["income"])
	assert.Equal(t, model.CategoryTypeSystem, names["transfers"])
}

func TestAddCategory(t *testing.T) {
	s := testStorage(t)
	ctx := context.Background()

	added, err := s.AddCategory(ctx, "education", model.CategoryTypeExpense)
	require.NoError(t, err)
	assert.NotZero(t, added.ID)

	_, err = s.AddCategory(ctx, "education", model.CategoryTypeExpense)
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := testStorage(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}
