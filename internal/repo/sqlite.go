package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteRepository provides access to a local SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLite opens a new connection to the SQLite database.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger) (*SQLiteRepository, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is empty")
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL&_pragma=foreign_keys=ON&_time_format=sqlite", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	r := &SQLiteRepository{
		db:     db,
		logger: logger.With("component", "repo_sqlite"),
	}

	return r, nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// Ping ensures the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (r *SQLiteRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return applyMigrations(ctx, filesystem, sqliteMigrationsDir, func(ctx context.Context, sql string) error {
		_, err := r.db.ExecContext(ctx, sql)
		return err
	})
}

// EnsureProofColumns adds the optional payment proof columns when missing.
// SQLite has no ADD COLUMN IF NOT EXISTS so the table is inspected first.
func (r *SQLiteRepository) EnsureProofColumns(ctx context.Context) error {
	caps, err := r.InspectSchema(ctx)
	if err != nil {
		return err
	}
	if !caps.ProofReceived {
		if _, err := r.db.ExecContext(ctx, `ALTER TABLE pedidos ADD COLUMN comprobante_recibido INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("add column %s: %w", columnProofReceived, err)
		}
		r.logger.Info("added order column", "column", columnProofReceived)
	}
	if !caps.ProofURL {
		if _, err := r.db.ExecContext(ctx, `ALTER TABLE pedidos ADD COLUMN comprobante_url TEXT`); err != nil {
			return fmt.Errorf("add column %s: %w", columnProofURL, err)
		}
		r.logger.Info("added order column", "column", columnProofURL)
	}
	return nil
}

// InspectSchema reports which optional order columns exist.
func (r *SQLiteRepository) InspectSchema(ctx context.Context) (SchemaCapabilities, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM pragma_table_info('pedidos')`)
	if err != nil {
		return SchemaCapabilities{}, fmt.Errorf("inspect schema: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return SchemaCapabilities{}, fmt.Errorf("scan schema column: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return SchemaCapabilities{}, fmt.Errorf("iterate schema columns: %w", err)
	}
	return capabilitiesFromColumns(columns), nil
}

// InsertConversation appends a conversation log entry.
func (r *SQLiteRepository) InsertConversation(ctx context.Context, rec ConversationRecord) error {
	const q = `
INSERT INTO conversaciones (id, numero_telefono, created_at, mensaje_usuario, mensaje_bot, step, session_data)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
	if rec.ID == "" {
		rec.ID = randomUUID()
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.CustomerID,
		rec.CreatedAt.UTC(),
		rec.Inbound,
		rec.Outbound,
		rec.Step,
		rec.SessionData,
	)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// ListConversations returns the latest conversation entries.
func (r *SQLiteRepository) ListConversations(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
SELECT id, numero_telefono, created_at, mensaje_usuario, mensaje_bot, step, session_data
FROM conversaciones
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.CreatedAt, &rec.Inbound, &rec.Outbound, &rec.Step, &rec.SessionData); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return records, nil
}

// InsertOrder stores a new order record.
func (r *SQLiteRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	const q = `
INSERT INTO pedidos (id, numero_telefono, nombre_cliente, tamano, agregado, bebida, total, created_at, estado)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`
	if order.ID == "" {
		order.ID = randomUUID()
	}
	order.CreatedAt = order.CreatedAt.UTC()
	_, err := r.db.ExecContext(ctx, q,
		order.ID,
		order.CustomerID,
		order.CustomerName,
		order.Size,
		order.Addon,
		order.Drink,
		order.Total,
		order.CreatedAt,
		order.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &order, nil
}

// LatestOrderID returns the most recent order of a customer.
func (r *SQLiteRepository) LatestOrderID(ctx context.Context, customerID string) (string, error) {
	const q = `
SELECT id
FROM pedidos
WHERE numero_telefono = ?
ORDER BY created_at DESC, rowid DESC
LIMIT 1;
`
	var id string
	if err := r.db.QueryRowContext(ctx, q, customerID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("latest order of %s: %w", customerID, ErrOrderNotFound)
		}
		return "", fmt.Errorf("latest order: %w", err)
	}
	return id, nil
}

// UpdateOrderStatus updates only the status column.
func (r *SQLiteRepository) UpdateOrderStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pedidos SET estado = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectRow(res, "update order status", id)
}

// UpdateOrderStatusWithProof updates the status together with the proof flag.
func (r *SQLiteRepository) UpdateOrderStatusWithProof(ctx context.Context, id, status string, proofReceived bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pedidos SET estado = ?, comprobante_recibido = ? WHERE id = ?`, status, proofReceived, id)
	if err != nil {
		return fmt.Errorf("update order status with proof: %w", err)
	}
	return expectRow(res, "update order status with proof", id)
}

// SetOrderProofURL stores the payment proof reference.
func (r *SQLiteRepository) SetOrderProofURL(ctx context.Context, id, url string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pedidos SET comprobante_url = ? WHERE id = ?`, url, id)
	if err != nil {
		return fmt.Errorf("set order proof url: %w", err)
	}
	return expectRow(res, "set order proof url", id)
}

// ListOrders returns every order, newest first.
func (r *SQLiteRepository) ListOrders(ctx context.Context, caps SchemaCapabilities) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx, listOrdersQuery(caps)+", rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(orderScanTargets(&o, caps)...); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// ListOrdersWithProofURL returns orders that carry a proof reference.
func (r *SQLiteRepository) ListOrdersWithProofURL(ctx context.Context) ([]Order, error) {
	const q = `
SELECT id, numero_telefono, nombre_cliente, total, comprobante_url, created_at, estado
FROM pedidos
WHERE comprobante_url IS NOT NULL
ORDER BY created_at DESC, rowid DESC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list proofs: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.Total, &o.ProofURL, &o.CreatedAt, &o.Status); err != nil {
			return nil, fmt.Errorf("scan proof: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate proofs: %w", err)
	}
	return orders, nil
}

func expectRow(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrOrderNotFound)
	}
	return nil
}
