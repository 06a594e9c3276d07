package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository provides typed access to a Postgres database.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

// NewPostgres opens a new connection pool to the database with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &PostgresRepository{
		pool:   pool,
		logger: logger.With("component", "repo_postgres"),
		schema: schema,
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (r *PostgresRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return applyMigrations(ctx, filesystem, postgresMigrationsDir, func(ctx context.Context, sql string) error {
		return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql)
			return err
		})
	})
}

// EnsureProofColumns adds the optional payment proof columns when missing.
func (r *PostgresRepository) EnsureProofColumns(ctx context.Context) error {
	const q = `
ALTER TABLE pedidos ADD COLUMN IF NOT EXISTS comprobante_recibido BOOLEAN NOT NULL DEFAULT FALSE;
ALTER TABLE pedidos ADD COLUMN IF NOT EXISTS comprobante_url TEXT;
`
	if _, err := r.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("add proof columns: %w", err)
	}
	return nil
}

// InspectSchema reports which optional order columns exist.
func (r *PostgresRepository) InspectSchema(ctx context.Context) (SchemaCapabilities, error) {
	const q = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = 'pedidos';
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return SchemaCapabilities{}, fmt.Errorf("inspect schema: %w", err)
	}
	columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return SchemaCapabilities{}, fmt.Errorf("scan schema columns: %w", err)
	}
	return capabilitiesFromColumns(columns), nil
}

// InsertConversation appends a conversation log entry.
func (r *PostgresRepository) InsertConversation(ctx context.Context, rec ConversationRecord) error {
	const q = `
INSERT INTO conversaciones (id, numero_telefono, created_at, mensaje_usuario, mensaje_bot, step, session_data)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	if rec.ID == "" {
		rec.ID = randomUUID()
	}
	_, err := r.pool.Exec(ctx, q,
		rec.ID,
		rec.CustomerID,
		rec.CreatedAt,
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
func (r *PostgresRepository) ListConversations(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	const q = `
SELECT id, numero_telefono, created_at, mensaje_usuario, mensaje_bot, step, session_data
FROM conversaciones
ORDER BY created_at DESC
LIMIT $1;
`
	rows, err := r.pool.Query(ctx, q, limit)
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
func (r *PostgresRepository) InsertOrder(ctx context.Context, order Order) (*Order, error) {
	const q = `
INSERT INTO pedidos (id, numero_telefono, nombre_cliente, tamano, agregado, bebida, total, created_at, estado)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at;
`
	if order.ID == "" {
		order.ID = randomUUID()
	}
	err := r.pool.QueryRow(ctx, q,
		order.ID,
		order.CustomerID,
		order.CustomerName,
		order.Size,
		order.Addon,
		order.Drink,
		order.Total,
		order.CreatedAt,
		order.Status,
	).Scan(&order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &order, nil
}

// LatestOrderID returns the most recent order of a customer.
func (r *PostgresRepository) LatestOrderID(ctx context.Context, customerID string) (string, error) {
	const q = `
SELECT id
FROM pedidos
WHERE numero_telefono = $1
ORDER BY created_at DESC
LIMIT 1;
`
	var id string
	if err := r.pool.QueryRow(ctx, q, customerID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("latest order of %s: %w", customerID, ErrOrderNotFound)
		}
		return "", fmt.Errorf("latest order: %w", err)
	}
	return id, nil
}

// UpdateOrderStatus updates only the status column.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id, status string) error {
	const q = `UPDATE pedidos SET estado = $2 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update order status %s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// UpdateOrderStatusWithProof updates the status together with the proof flag.
func (r *PostgresRepository) UpdateOrderStatusWithProof(ctx context.Context, id, status string, proofReceived bool) error {
	const q = `UPDATE pedidos SET estado = $2, comprobante_recibido = $3 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id, status, proofReceived)
	if err != nil {
		return fmt.Errorf("update order status with proof: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("update order status with proof %s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// SetOrderProofURL stores the payment proof reference.
func (r *PostgresRepository) SetOrderProofURL(ctx context.Context, id, url string) error {
	const q = `UPDATE pedidos SET comprobante_url = $2 WHERE id = $1`
	ct, err := r.pool.Exec(ctx, q, id, url)
	if err != nil {
		return fmt.Errorf("set order proof url: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("set order proof url %s: %w", id, ErrOrderNotFound)
	}
	return nil
}

// ListOrders returns every order, newest first, including optional columns
// only when caps reports them.
func (r *PostgresRepository) ListOrders(ctx context.Context, caps SchemaCapabilities) ([]Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersQuery(caps))
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
func (r *PostgresRepository) ListOrdersWithProofURL(ctx context.Context) ([]Order, error) {
	const q = `
SELECT id, numero_telefono, nombre_cliente, total, comprobante_url, created_at, estado
FROM pedidos
WHERE comprobante_url IS NOT NULL
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, q)
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
