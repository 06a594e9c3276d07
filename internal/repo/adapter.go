package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"papas-bot/internal/convo"
	"papas-bot/internal/menu"
	"papas-bot/internal/metrics"
)

// Adapter persists conversation effects through a Repository, degrading
// gracefully when optional order columns are missing.
type Adapter struct {
	repo    Repository
	caps    SchemaCapabilities
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewAdapter binds a repository to the schema capabilities detected at startup.
func NewAdapter(repo Repository, caps SchemaCapabilities, logger *slog.Logger, m *metrics.Metrics) *Adapter {
	return &Adapter{
		repo:    repo,
		caps:    caps,
		logger:  logger.With("component", "persistence"),
		metrics: m,
		now:     time.Now,
	}
}

// Capabilities returns the schema capabilities the adapter was built with.
func (a *Adapter) Capabilities() SchemaCapabilities {
	return a.caps
}

// CreateOrder implements convo.Persistence.
func (a *Adapter) CreateOrder(ctx context.Context, customerID string, order menu.Order, total int) (string, error) {
	rec := Order{
		CustomerID:   customerID,
		CustomerName: order.CustomerName,
		Size:         string(order.Size),
		Drink:        order.Drink,
		Total:        int64(total),
		Status:       StatusAwaitingPayment,
		CreatedAt:    a.now(),
	}
	if desc := menu.Descriptor(order.Addon, order.AddonVariant); desc != "" {
		rec.Addon = &desc
	}
	saved, err := a.repo.InsertOrder(ctx, rec)
	if err != nil {
		return "", err
	}
	a.logger.Debug("order row inserted", "order_id", saved.ID, "customer", customerID)
	return saved.ID, nil
}

// ConfirmPayment implements convo.Persistence. The status always moves to
// proof received; the proof flag and URL are written only when the schema
// carries them.
func (a *Adapter) ConfirmPayment(ctx context.Context, customerID, orderID, proofURL string) error {
	if orderID == "" {
		id, err := a.repo.LatestOrderID(ctx, customerID)
		if err != nil {
			return fmt.Errorf("resolve order for payment: %w", err)
		}
		orderID = id
	}

	if err := a.updateStatus(ctx, orderID); err != nil {
		return err
	}

	if proofURL == "" {
		return nil
	}
	if !a.caps.ProofURL {
		a.logger.Info("proof url column missing, reference not stored", "order_id", orderID)
		a.fallback("proof_url")
		return nil
	}
	if err := a.repo.SetOrderProofURL(ctx, orderID, proofURL); err != nil {
		a.logger.Warn("store proof url failed", "order_id", orderID, "error", err)
		if a.metrics != nil {
			a.metrics.Errors.WithLabelValues("persistence").Inc()
		}
	}
	return nil
}

func (a *Adapter) updateStatus(ctx context.Context, orderID string) error {
	if !a.caps.ProofReceived {
		a.fallback("status")
		return a.repo.UpdateOrderStatus(ctx, orderID, StatusProofReceived)
	}

	err := a.repo.UpdateOrderStatusWithProof(ctx, orderID, StatusProofReceived, true)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrOrderNotFound) || ctx.Err() != nil {
		return err
	}

	a.logger.Warn("status update with proof flag failed, retrying basic update", "order_id", orderID, "error", err)
	a.fallback("status")
	return a.repo.UpdateOrderStatus(ctx, orderID, StatusProofReceived)
}

// LogTurn implements convo.Persistence.
func (a *Adapter) LogTurn(ctx context.Context, turn convo.Turn) error {
	rec := ConversationRecord{
		CustomerID: turn.CustomerID,
		CreatedAt:  turn.At,
		Inbound:    turn.Inbound,
		Outbound:   turn.Outbound,
		Step:       string(turn.Step),
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now()
	}
	if turn.Snapshot != nil {
		data, err := json.Marshal(turn.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal session snapshot: %w", err)
		}
		snapshot := string(data)
		rec.SessionData = &snapshot
	}
	return a.repo.InsertConversation(ctx, rec)
}

// Orders lists stored orders with whichever optional columns exist.
func (a *Adapter) Orders(ctx context.Context) ([]Order, error) {
	return a.repo.ListOrders(ctx, a.caps)
}

// Proofs lists orders with a stored proof reference. Without the URL column
// there is nothing to list.
func (a *Adapter) Proofs(ctx context.Context) ([]Order, error) {
	if !a.caps.ProofURL {
		return []Order{}, nil
	}
	return a.repo.ListOrdersWithProofURL(ctx)
}

// Conversations lists the latest conversation log entries.
func (a *Adapter) Conversations(ctx context.Context, limit int) ([]ConversationRecord, error) {
	return a.repo.ListConversations(ctx, limit)
}

func (a *Adapter) fallback(operation string) {
	if a.metrics != nil {
		a.metrics.SchemaFallbacks.WithLabelValues(operation).Inc()
	}
}
