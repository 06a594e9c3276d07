package repo

import (
	"context"
	"io/fs"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error
	RunMigrations(ctx context.Context, filesystem fs.FS) error

	// Schema
	EnsureProofColumns(ctx context.Context) error
	InspectSchema(ctx context.Context) (SchemaCapabilities, error)

	// Conversations
	InsertConversation(ctx context.Context, rec ConversationRecord) error
	ListConversations(ctx context.Context, limit int) ([]ConversationRecord, error)

	// Orders
	InsertOrder(ctx context.Context, order Order) (*Order, error)
	LatestOrderID(ctx context.Context, customerID string) (string, error)
	UpdateOrderStatus(ctx context.Context, id, status string) error
	UpdateOrderStatusWithProof(ctx context.Context, id, status string, proofReceived bool) error
	SetOrderProofURL(ctx context.Context, id, url string) error
	ListOrders(ctx context.Context, caps SchemaCapabilities) ([]Order, error)
	ListOrdersWithProofURL(ctx context.Context) ([]Order, error)
}
