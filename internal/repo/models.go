package repo

import (
	"errors"
	"time"
)

// Order statuses. Orders only move forward from awaiting payment to proof received.
const (
	StatusAwaitingPayment = "esperando_pago"
	StatusProofReceived   = "comprobante_recibido"
)

// Optional columns of the pedidos table.
const (
	columnProofReceived = "comprobante_recibido"
	columnProofURL      = "comprobante_url"
)

// ErrOrderNotFound is returned when an update targets no order row.
var ErrOrderNotFound = errors.New("order not found")

// SchemaCapabilities records which optional order columns exist. It is
// computed once at startup and never changes afterwards.
type SchemaCapabilities struct {
	ProofReceived bool `json:"comprobante_recibido"`
	ProofURL      bool `json:"comprobante_url"`
}

// Full reports whether every optional column is present.
func (c SchemaCapabilities) Full() bool {
	return c.ProofReceived && c.ProofURL
}

func capabilitiesFromColumns(columns []string) SchemaCapabilities {
	var caps SchemaCapabilities
	for _, col := range columns {
		switch col {
		case columnProofReceived:
			caps.ProofReceived = true
		case columnProofURL:
			caps.ProofURL = true
		}
	}
	return caps
}

// Order represents a row in pedidos table.
type Order struct {
	ID            string
	CustomerID    string
	CustomerName  string
	Size          string
	Addon         *string
	Drink         bool
	Total         int64
	Status        string
	CreatedAt     time.Time
	ProofReceived *bool
	ProofURL      *string
}

// ConversationRecord represents a row in conversaciones table.
type ConversationRecord struct {
	ID          string
	CustomerID  string
	CreatedAt   time.Time
	Inbound     string
	Outbound    string
	Step        string
	SessionData *string
}
