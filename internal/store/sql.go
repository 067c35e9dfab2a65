package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"stockwatch/internal/errors"
	"stockwatch/internal/models"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config holds SQL store configuration.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Order           QuoteOrder
}

// SQLStore implements DataStore on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
	order  QuoteOrder
}

// NewSQLStore opens the database and creates the schema if needed.
func NewSQLStore(cfg Config) (*SQLStore, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q: %w", cfg.Driver, errors.ErrConfigInvalid)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, 10))
	db.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, 5))
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(time.Hour)
	}

	order := cfg.Order
	if order != OrderByPrice {
		order = OrderBySymbol
	}

	s := &SQLStore{db: db, driver: cfg.Driver, order: order}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "_journal_mode") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// initSchema creates all required tables and indexes.
// The column types are understood by both SQLite and PostgreSQL.
func (s *SQLStore) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS explore_cache (
			symbol TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			last_price DOUBLE PRECISION,
			absolute_change DOUBLE PRECISION,
			percent_change DOUBLE PRECISION,
			refreshed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_explore_cache_price ON explore_cache(last_price)`,
		`CREATE TABLE IF NOT EXISTS favorites (
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			display_name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (user_id, symbol)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Explore Cache Methods
// ============================================================================

// UpsertQuotes writes all quotes of a refresh run in one transaction.
func (s *SQLStore) UpsertQuotes(ctx context.Context, quotes []models.CachedQuote) (int, error) {
	if len(quotes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.NewStoreError("upsert_quotes", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO explore_cache (symbol, display_name, last_price, absolute_change, percent_change, refreshed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			display_name = excluded.display_name,
			last_price = excluded.last_price,
			absolute_change = excluded.absolute_change,
			percent_change = excluded.percent_change,
			refreshed_at = excluded.refreshed_at
	`))
	if err != nil {
		return 0, errors.NewStoreError("upsert_quotes", fmt.Errorf("failed to prepare statement: %w", err))
	}
	defer stmt.Close()

	for _, q := range quotes {
		_, err := stmt.ExecContext(ctx, q.Symbol, q.DisplayName, q.LastPrice, q.AbsoluteChange, q.PercentChange, q.RefreshedAt.UTC())
		if err != nil {
			return 0, errors.NewStoreError("upsert_quotes", fmt.Errorf("failed to upsert %s: %w", q.Symbol, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.NewStoreError("upsert_quotes", fmt.Errorf("failed to commit transaction: %w", err))
	}

	return len(quotes), nil
}

// PageQuotes returns one page of the explore cache and the total row count,
// both read from the same snapshot.
func (s *SQLStore) PageQuotes(ctx context.Context, limit, offset int) (int, []models.CachedQuote, error) {
	limit, offset = ClampPage(limit, offset)

	orderBy := "symbol ASC"
	if s.order == OrderByPrice {
		orderBy = "last_price DESC NULLS LAST, symbol ASC"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, errors.NewStoreError("page_quotes", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM explore_cache`).Scan(&total); err != nil {
		return 0, nil, errors.NewStoreError("page_quotes", fmt.Errorf("failed to count rows: %w", err))
	}

	rows, err := tx.QueryContext(ctx, s.rebind(`
		SELECT symbol, display_name, last_price, absolute_change, percent_change, refreshed_at
		FROM explore_cache
		ORDER BY `+orderBy+`
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return 0, nil, errors.NewStoreError("page_quotes", fmt.Errorf("failed to query explore cache: %w", err))
	}
	defer rows.Close()

	quotes := make([]models.CachedQuote, 0, limit)
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return 0, nil, errors.NewStoreError("page_quotes", err)
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, errors.NewStoreError("page_quotes", err)
	}

	return total, quotes, nil
}

// GetQuote returns the cached row for one symbol.
func (s *SQLStore) GetQuote(ctx context.Context, symbol string) (*models.CachedQuote, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT symbol, display_name, last_price, absolute_change, percent_change, refreshed_at
		FROM explore_cache WHERE symbol = ?
	`), symbol)

	q, err := scanQuote(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cached quote %s: %w", symbol, errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.NewStoreError("get_quote", err)
	}
	return &q, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuote(row scanner) (models.CachedQuote, error) {
	var q models.CachedQuote
	err := row.Scan(&q.Symbol, &q.DisplayName, &q.LastPrice, &q.AbsoluteChange, &q.PercentChange, &q.RefreshedAt)
	if err != nil {
		return q, err
	}
	q.RefreshedAt = q.RefreshedAt.UTC()
	return q, nil
}

// ============================================================================
// Favorites Methods
// ============================================================================

// AddFavorite inserts a favorite. A duplicate (user, symbol) returns ErrAlreadyExists.
func (s *SQLStore) AddFavorite(ctx context.Context, fav models.Favorite) error {
	if fav.CreatedAt.IsZero() {
		fav.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO favorites (user_id, symbol, display_name, created_at) VALUES (?, ?, ?, ?)
	`), fav.UserID, fav.Symbol, fav.DisplayName, fav.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("favorite %s: %w", fav.Symbol, errors.ErrAlreadyExists)
		}
		return errors.NewStoreError("add_favorite", err)
	}
	return nil
}

// RemoveFavorite deletes a favorite. A missing row returns ErrNotFound.
func (s *SQLStore) RemoveFavorite(ctx context.Context, userID, symbol string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		DELETE FROM favorites WHERE user_id = ? AND symbol = ?
	`), userID, symbol)
	if err != nil {
		return errors.NewStoreError("remove_favorite", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewStoreError("remove_favorite", err)
	}
	if n == 0 {
		return fmt.Errorf("favorite %s: %w", symbol, errors.ErrNotFound)
	}
	return nil
}

// ListFavorites returns a user's favorites in the order they were pinned.
func (s *SQLStore) ListFavorites(ctx context.Context, userID string) ([]models.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT user_id, symbol, display_name, created_at
		FROM favorites WHERE user_id = ?
		ORDER BY created_at ASC, symbol ASC
	`), userID)
	if err != nil {
		return nil, errors.NewStoreError("list_favorites", fmt.Errorf("failed to query favorites: %w", err))
	}
	defer rows.Close()

	favs := []models.Favorite{}
	for rows.Next() {
		var f models.Favorite
		if err := rows.Scan(&f.UserID, &f.Symbol, &f.DisplayName, &f.CreatedAt); err != nil {
			return nil, errors.NewStoreError("list_favorites", fmt.Errorf("failed to scan favorite: %w", err))
		}
		f.CreatedAt = f.CreatedAt.UTC()
		favs = append(favs, f)
	}

	return favs, rows.Err()
}

// isUniqueViolation maps driver-specific constraint errors.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
