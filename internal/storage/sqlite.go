// Package storage implements the persistence contract on SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tech1ee/finuts/internal/common"
	"github.com/tech1ee/finuts/internal/model"
	"github.com/tech1ee/finuts/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage opens (or creates) the database at dbPath.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath is required: %w", common.ErrMissingConfig)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveTransactions persists a batch atomically. Rows whose hash already
// exists are skipped, so a re-run of the same import cannot double-book.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.ImportedTransaction) error {
	if len(transactions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (id, hash, date, description, merchant, account_id,
			amount, running_balance, category, parse_source, parse_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range transactions {
		hash := txn.Hash
		if hash == "" {
			hash = txn.GenerateHash()
		}
		var balance any
		if txn.RunningBalance != nil {
			balance = *txn.RunningBalance
		}
		if _, err := stmt.ExecContext(ctx,
			txn.ID, hash, txn.Date.UTC(), txn.Description, txn.Merchant, txn.AccountID,
			txn.Amount, balance, txn.SuggestedCategory, string(txn.ParseSource), txn.ParseConfidence,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// QueryExistingTransactions returns saved transactions dated inside the
// window, inclusive.
func (s *SQLiteStorage) QueryExistingTransactions(ctx context.Context, window service.DateWindow) ([]model.ImportedTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hash, date, description, merchant, account_id,
			amount, running_balance, category, parse_source, parse_confidence
		FROM transactions
		WHERE date >= ? AND date <= ?
		ORDER BY date, id`,
		window.Start.UTC(), window.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.ImportedTransaction
	for rows.Next() {
		var (
			txn         model.ImportedTransaction
			merchant    sql.NullString
			accountID   sql.NullString
			balance     sql.NullInt64
			category    sql.NullString
			parseSource sql.NullString
			confidence  sql.NullFloat64
		)
		if err := rows.Scan(&txn.ID, &txn.Hash, &txn.Date, &txn.Description, &merchant, &accountID,
			&txn.Amount, &balance, &category, &parseSource, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txn.Merchant = merchant.String
		txn.AccountID = accountID.String
		txn.SuggestedCategory = category.String
		txn.ParseSource = model.ParseSource(parseSource.String)
		txn.ParseConfidence = confidence.Float64
		if balance.Valid {
			b := balance.Int64
			txn.RunningBalance = &b
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// GetLearnedMerchants loads all learned merchant mappings.
func (s *SQLiteStorage) GetLearnedMerchants(ctx context.Context) ([]model.LearnedMerchant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern, category, source, sample_count, confidence, last_used_at
		FROM learned_merchants
		ORDER BY pattern`)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned merchants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var merchants []model.LearnedMerchant
	for rows.Next() {
		var (
			m        model.LearnedMerchant
			source   sql.NullString
			lastUsed sql.NullTime
		)
		if err := rows.Scan(&m.Pattern, &m.Category, &source, &m.SampleCount, &m.Confidence, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan learned merchant: %w", err)
		}
		m.Source = model.LearnedSource(source.String)
		m.LastUsedAt = lastUsed.Time
		merchants = append(merchants, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate learned merchants: %w", err)
	}
	return merchants, nil
}

// UpsertLearnedMerchant inserts or updates one learned mapping, keyed by
// its normalized pattern.
func (s *SQLiteStorage) UpsertLearnedMerchant(ctx context.Context, merchant model.LearnedMerchant) error {
	if merchant.Pattern == "" {
		return fmt.Errorf("learned merchant pattern is required: %w", common.ErrInvalidConfig)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_merchants (pattern, category, source, sample_count, confidence, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern) DO UPDATE SET
			category = excluded.category,
			source = excluded.source,
			sample_count = excluded.sample_count,
			confidence = excluded.confidence,
			last_used_at = excluded.last_used_at`,
		merchant.Pattern, merchant.Category, string(merchant.Source),
		merchant.SampleCount, merchant.Confidence, merchant.LastUsedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert learned merchant %q: %w", merchant.Pattern, err)
	}
	return nil
}

// ListCategories returns active categories ordered by name.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, description, is_active, created_at
		FROM categories
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var (
			c         model.Category
			catType   string
			desc      sql.NullString
			createdAt sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.Name, &catType, &desc, &c.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.Type = model.CategoryType(catType)
		c.Description = desc.String
		c.CreatedAt = createdAt.Time
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// AddCategory inserts a new category. Duplicate names return
// common.ErrDuplicateEntry.
func (s *SQLiteStorage) AddCategory(ctx context.Context, name string, catType model.CategoryType) (model.Category, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, type, is_active, created_at)
		VALUES (?, ?, 1, ?)`,
		name, string(catType), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return model.Category{}, fmt.Errorf("category %q: %w", name, common.ErrDuplicateEntry)
		}
		return model.Category{}, fmt.Errorf("failed to insert category %q: %w", name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Category{}, fmt.Errorf("failed to read category id: %w", err)
	}
	return model.Category{ID: int(id), Name: name, Type: catType, IsActive: true}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
