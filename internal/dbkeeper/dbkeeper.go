package dbkeeper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/drstein77/luxestore/internal/models"
	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

type Log interface {
	Info(string, ...zap.Field)
	Error(string, ...zap.Field)
}

// DBKeeper snapshots shopper carts to PostgreSQL.
type DBKeeper struct {
	pool *pgxpool.Pool
	log  Log
}

// NewDBKeeper connects to the database and applies pending migrations.
// It returns nil when the dsn is empty or the database cannot be prepared.
func NewDBKeeper(ctx context.Context, dsn func() string, log Log) *DBKeeper {
	addr := dsn()
	if addr == "" {
		log.Info("database dsn is empty, carts stay in memory")
		return nil
	}

	config, err := pgxpool.ParseConfig(addr)
	if err != nil {
		log.Error("Unable to parse database DSN: ", zap.Error(err))
		return nil
	}

	if err := migrateUp(config.ConnConfig, log); err != nil {
		log.Error("Error while performing migration: ", zap.Error(err))
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		log.Error("Unable to connect to database: ", zap.Error(err))
		return nil
	}

	log.Info("Connected!")

	return &DBKeeper{
		pool: pool,
		log:  log,
	}
}

func migrateUp(connConfig *pgx.ConnConfig, log Log) error {
	// golang-migrate talks database/sql, so register pgx as its driver
	sqlDB := stdlib.OpenDB(*connConfig)
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("get migration driver: %w", err)
	}

	source, err := migrationsURL()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	log.Info("Migrations applied", zap.String("source", source))
	return nil
}

// migrationsURL finds the migrations directory next to the working directory,
// or at the module root when running from a package directory in tests.
func migrationsURL() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current directory: %w", err)
	}

	for _, candidate := range []string{
		filepath.Join(dir, "migrations"),
		filepath.Join(dir, "..", "..", "migrations"),
	} {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return "file://" + filepath.ToSlash(candidate), nil
		}
	}
	return "", errors.New("migrations directory not found")
}

// SaveCarts replaces the stored lines of each session in carts within one transaction.
// Sessions mapped to no lines are deleted.
func (kp *DBKeeper) SaveCarts(ctx context.Context, carts map[string][]models.CartLine) (err error) {
	// Checking database connection
	if kp.pool == nil {
		return fmt.Errorf("database connection pool is nil")
	}

	tx, err := kp.pool.Begin(ctx)
	if err != nil {
		kp.log.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Using deferred function to rollback transaction in case of an error
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				kp.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
			}
		}
	}()

	const (
		deleteStmt = `DELETE FROM cart_lines WHERE session_id = $1`
		insertStmt = `
			INSERT INTO cart_lines (session_id, product_id, quantity, position, updated_at)
			VALUES ($1, $2, $3, $4, now())
		`
	)

	batch := &pgx.Batch{}
	for session, lines := range carts {
		batch.Queue(deleteStmt, session)
		for i, line := range lines {
			batch.Queue(insertStmt, session, line.ProductID, line.Quantity, i)
		}
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, execErr := br.Exec(); execErr != nil {
			br.Close()
			err = fmt.Errorf("failed to execute batch query: %w", execErr)
			return err
		}
	}

	if closeErr := br.Close(); closeErr != nil {
		err = fmt.Errorf("failed to close batch results: %w", closeErr)
		return err
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		return err
	}

	return nil
}

// LoadCarts returns every stored cart keyed by session, lines in their saved order.
func (kp *DBKeeper) LoadCarts(ctx context.Context) (map[string][]models.CartLine, error) {
	if kp.pool == nil {
		return nil, fmt.Errorf("database connection pool is nil")
	}

	rows, err := kp.pool.Query(ctx, `
		SELECT session_id, product_id, quantity
		FROM cart_lines
		ORDER BY session_id, position
	`)
	if err != nil {
		kp.log.Error("Failed to execute query", zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	carts := make(map[string][]models.CartLine)
	for rows.Next() {
		var (
			session string
			line    models.CartLine
		)
		if err := rows.Scan(&session, &line.ProductID, &line.Quantity); err != nil {
			kp.log.Error("Failed to scan row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		carts[session] = append(carts[session], line)
	}

	if err := rows.Err(); err != nil {
		kp.log.Error("Error occurred during rows iteration", zap.Error(err))
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	return carts, nil
}

func (kp *DBKeeper) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := kp.pool.Ping(ctx); err != nil {
		kp.log.Error("Database ping failed", zap.Error(err))
		return false
	}

	return true
}

func (kp *DBKeeper) Close() bool {
	if kp.pool != nil {
		kp.pool.Close()
		kp.log.Info("Database connection pool closed")
		return true
	}
	kp.log.Info("Attempted to close a nil database connection pool")
	return false
}
