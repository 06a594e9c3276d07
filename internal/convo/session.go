package convo

import (
	"context"
	"sync"

	"papas-bot/internal/menu"
)

// Step names the point a customer has reached in the ordering conversation.
// Values are persisted with every conversation log entry.
type Step string

const (
	StepStart                Step = "inicio"
	StepAwaitingName         Step = "esperando_nombre"
	StepAwaitingSize         Step = "esperando_tamaño"
	StepAwaitingAddonChoice  Step = "esperando_agregado_opcion"
	StepAwaitingAddonType    Step = "esperando_tipo_agregado"
	StepAwaitingVariant      Step = "esperando_tipo_extra_premium"
	StepAwaitingDrink        Step = "esperando_bebida"
	StepAwaitingConfirmation Step = "esperando_confirmacion_final"
	StepModifying            Step = "modificando_pedido"
	StepAwaitingNewSize      Step = "esperando_tamaño_modificacion"
	StepAskingAddonChange    Step = "preguntando_cambio_agregado"
	StepAwaitingProof        Step = "esperando_comprobante"
	StepCompleted            Step = "pedido_completado"
)

// Steps lists every valid step.
var Steps = []Step{
	StepStart,
	StepAwaitingName,
	StepAwaitingSize,
	StepAwaitingAddonChoice,
	StepAwaitingAddonType,
	StepAwaitingVariant,
	StepAwaitingDrink,
	StepAwaitingConfirmation,
	StepModifying,
	StepAwaitingNewSize,
	StepAskingAddonChange,
	StepAwaitingProof,
	StepCompleted,
}

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	for _, known := range Steps {
		if s == known {
			return true
		}
	}
	return false
}

// requiresSize reports whether the order must already carry a size when the
// conversation sits at s.
func (s Step) requiresSize() bool {
	switch s {
	case StepStart, StepAwaitingName, StepAwaitingSize:
		return false
	default:
		return true
	}
}

// Session is the per-customer conversation state.
type Session struct {
	Step    Step       `json:"step"`
	Order   menu.Order `json:"order"`
	OrderID string     `json:"orderRecordId,omitempty"`
}

// NewSession returns the state of a customer never seen before.
func NewSession() Session {
	return Session{Step: StepStart}
}

// SessionStore keeps sessions keyed by customer identifier.
type SessionStore interface {
	Get(ctx context.Context, customerID string) (Session, bool, error)
	Put(ctx context.Context, customerID string, sess Session) error
	Delete(ctx context.Context, customerID string) error
}

// MemoryStore is a process-local SessionStore. Sessions are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Get(_ context.Context, customerID string) (Session, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[customerID]
	return sess, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, customerID string, sess Session) error {
	m.mu.Lock()
	m.sessions[customerID] = sess
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, customerID string) error {
	m.mu.Lock()
	delete(m.sessions, customerID)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
