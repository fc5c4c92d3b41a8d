// Package store persists invoices in SQLite. The ledger is the
// authority at runtime; the store is a write-through journal the
// daemon rehydrates from at startup.
package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS invoices (
	id               INTEGER PRIMARY KEY,
	sender           TEXT    NOT NULL,
	recipient        TEXT    NOT NULL,
	description      TEXT    NOT NULL,
	amount_wei       TEXT    NOT NULL,
	encrypted_amount TEXT    NOT NULL DEFAULT '',
	due_date         INTEGER NOT NULL,
	status           INTEGER NOT NULL,
	created_at       INTEGER NOT NULL,
	paid_at          INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS invoices_sender    ON invoices (sender, id);
CREATE INDEX IF NOT EXISTS invoices_recipient ON invoices (recipient, id);
`

// Config holds the parameters for opening the invoice store.
type Config struct {
	// Path is the SQLite database file. Created if it does not
	// exist. ":memory:" gives an in-memory database for tests (pool
	// size must be 1: each in-memory connection is independent).
	Path string

	// PoolSize is the number of connections. Defaults to 4. The
	// ledger serializes writes anyway; extra connections only help
	// concurrent reads.
	PoolSize int
}

// SQLite is a pooled SQLite-backed invoice store. Safe for concurrent
// use; individual connections are not shared.
type SQLite struct {
	pool *sqlitex.Pool
	path string
	log  zerolog.Logger
}

// Open creates the connection pool and applies the schema and
// standard pragmas to every connection.
func Open(cfg Config) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	if cfg.Path == ":memory:" {
		poolSize = 1
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA journal_mode = WAL;", nil); err != nil {
				return fmt.Errorf("setting journal mode: %w", err)
			}
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA foreign_keys = ON;", nil); err != nil {
				return fmt.Errorf("enabling foreign keys: %w", err)
			}
			if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	log := logger.WithComponent("store")
	log.Info().
		Str("path", cfg.Path).
		Int("pool_size", poolSize).
		Msg("Invoice store opened")

	return &SQLite{pool: pool, path: cfg.Path, log: log}, nil
}

// SaveInvoice inserts or replaces an invoice row.
func (s *SQLite) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT OR REPLACE INTO invoices
			(id, sender, recipient, description, amount_wei,
			 encrypted_amount, due_date, status, created_at, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []any{
				int64(inv.ID),
				inv.Sender.String(),
				inv.Recipient.String(),
				inv.Description,
				inv.AmountWei.String(),
				inv.EncryptedAmount,
				inv.DueDate,
				int64(inv.Status),
				inv.CreatedAt,
				inv.PaidAt,
			},
		})
	if err != nil {
		return fmt.Errorf("store: saving invoice %d: %w", inv.ID, err)
	}
	return nil
}

// LoadInvoices returns every stored invoice ordered by ID.
func (s *SQLite) LoadInvoices(ctx context.Context) ([]models.Invoice, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: take connection: %w", err)
	}
	defer s.pool.Put(conn)

	var invoices []models.Invoice
	err = sqlitex.Execute(conn, `
		SELECT id, sender, recipient, description, amount_wei,
		       encrypted_amount, due_date, status, created_at, paid_at
		FROM invoices ORDER BY id ASC;`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				amount, err := decimal.NewFromString(stmt.ColumnText(4))
				if err != nil {
					return fmt.Errorf("invoice %d: parsing amount %q: %w",
						stmt.ColumnInt64(0), stmt.ColumnText(4), err)
				}
				invoices = append(invoices, models.Invoice{
					ID:              uint64(stmt.ColumnInt64(0)),
					Sender:          models.Address(stmt.ColumnText(1)),
					Recipient:       models.Address(stmt.ColumnText(2)),
					Description:     stmt.ColumnText(3),
					AmountWei:       amount,
					EncryptedAmount: stmt.ColumnText(5),
					DueDate:         stmt.ColumnInt64(6),
					Status:          models.Status(stmt.ColumnInt64(7)),
					CreatedAt:       stmt.ColumnInt64(8),
					PaidAt:          stmt.ColumnInt64(9),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: loading invoices: %w", err)
	}
	return invoices, nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", s.path, err)
	}
	s.log.Info().Str("path", s.path).Msg("Invoice store closed")
	return nil
}
