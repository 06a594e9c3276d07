package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papas-bot/internal/menu"
	"papas-bot/internal/metrics"
)

type fakePersistence struct {
	mu          sync.Mutex
	orders      []menu.Order
	confirmed   []string
	proofURLs   []string
	turns       []Turn
	createErr   error
	confirmErr  error
	logErr      error
	nextOrderID int
}

func (f *fakePersistence) CreateOrder(_ context.Context, _ string, order menu.Order, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextOrderID++
	f.orders = append(f.orders, order)
	return fmt.Sprintf("order-%d", f.nextOrderID), nil
}

func (f *fakePersistence) ConfirmPayment(_ context.Context, _, orderID, proofURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return f.confirmErr
	}
	f.confirmed = append(f.confirmed, orderID)
	f.proofURLs = append(f.proofURLs, proofURL)
	return nil
}

func (f *fakePersistence) LogTurn(_ context.Context, turn Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return f.logErr
	}
	f.turns = append(f.turns, turn)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

type failingStore struct {
	*MemoryStore
}

func (failingStore) Get(context.Context, string) (Session, bool, error) {
	return Session{}, false, errors.New("store offline")
}

const customer = "whatsapp:+56922222222"

func newTestEngine(store SessionStore, persist *fakePersistence, sender *fakeSender) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, persist, sender, metrics.Registry("papas_test"), logger, EngineConfig{})
}

func say(t *testing.T, e *Engine, body string) Outcome {
	t.Helper()
	out, err := e.Handle(context.Background(), Inbound{From: customer, Body: body})
	require.NoError(t, err)
	return out
}

func TestEngineFullConversation(t *testing.T) {
	store := NewMemoryStore()
	persist := &fakePersistence{}
	sender := &fakeSender{}
	e := newTestEngine(store, persist, sender)

	for _, body := range []string{"hola", "Ana", "2", "1", "2", "2", "1", "1"} {
		say(t, e, body)
	}

	sess, ok, err := store.Get(context.Background(), customer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepAwaitingProof, sess.Step)
	assert.Equal(t, "order-1", sess.OrderID)
	require.Len(t, persist.orders, 1)
	assert.Equal(t, menu.VariantPulledPork, persist.orders[0].AddonVariant)

	out, err := e.Handle(context.Background(), Inbound{
		From:  customer,
		Media: []Media{{URL: "https://api.twilio.com/media/ME1", ContentType: "image/jpeg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, StepCompleted, out.Step)
	assert.True(t, out.Logged)
	assert.Equal(t, []string{"order-1"}, persist.confirmed)
	assert.Equal(t, []string{"https://api.twilio.com/media/ME1"}, persist.proofURLs)

	assert.Len(t, persist.turns, 9)
	assert.Len(t, sender.sent, 9)
	last := persist.turns[len(persist.turns)-1]
	assert.Equal(t, StepCompleted, last.Step)
	require.NotNil(t, last.Snapshot)
	assert.Equal(t, "order-1", last.Snapshot.OrderID)
}

func TestEngineRestartAfterCompletion(t *testing.T) {
	store := NewMemoryStore()
	persist := &fakePersistence{}
	e := newTestEngine(store, persist, &fakeSender{})
	require.NoError(t, store.Put(context.Background(), customer, Session{
		Step:    StepCompleted,
		Order:   menu.Order{CustomerName: "Ana", Size: menu.SizeM, Addon: menu.AddonNone},
		OrderID: "order-9",
	}))

	out := say(t, e, "hola")
	assert.Equal(t, StepAwaitingName, out.Step)
	sess, ok, _ := store.Get(context.Background(), customer)
	require.True(t, ok)
	assert.Equal(t, Session{Step: StepAwaitingName}, sess)

	out = say(t, e, "Bruno")
	assert.Equal(t, StepAwaitingSize, out.Step)
	assert.Contains(t, out.Reply, "Bruno")
}

func TestEngineCreateOrderFailureResetsSession(t *testing.T) {
	store := NewMemoryStore()
	persist := &fakePersistence{createErr: errors.New("disk full")}
	sender := &fakeSender{}
	e := newTestEngine(store, persist, sender)
	require.NoError(t, store.Put(context.Background(), customer, Session{
		Step:  StepAwaitingConfirmation,
		Order: menu.Order{CustomerName: "Ana", Size: menu.SizeM, Addon: menu.AddonNone},
	}))

	out := say(t, e, "1")
	assert.True(t, out.Dropped)
	assert.Equal(t, e.machine.Templates().Failure(), out.Reply)
	assert.Equal(t, 0, store.Len())
	require.Len(t, persist.turns, 1)
	assert.Equal(t, StepStart, persist.turns[0].Step)
	assert.Nil(t, persist.turns[0].Snapshot)

	out = say(t, e, "hola")
	assert.Equal(t, StepAwaitingName, out.Step)
}

func TestEngineConfirmPaymentFailureStillCompletes(t *testing.T) {
	store := NewMemoryStore()
	persist := &fakePersistence{confirmErr: errors.New("locked")}
	e := newTestEngine(store, persist, &fakeSender{})
	require.NoError(t, store.Put(context.Background(), customer, Session{
		Step:    StepAwaitingProof,
		Order:   menu.Order{CustomerName: "Ana", Size: menu.SizeM, Addon: menu.AddonNone},
		OrderID: "order-1",
	}))

	out := say(t, e, "listo")
	assert.Equal(t, StepCompleted, out.Step)
	assert.Equal(t, e.machine.Templates().ProofReceived("Ana"), out.Reply)
}

func TestEngineStoreFailureRepliesWithFailure(t *testing.T) {
	persist := &fakePersistence{}
	sender := &fakeSender{}
	e := newTestEngine(failingStore{NewMemoryStore()}, persist, sender)

	out := say(t, e, "hola")
	assert.True(t, out.Dropped)
	assert.Equal(t, []string{e.machine.Templates().Failure()}, sender.sent)
}

func TestEngineDeliveryFailureIsDistinguishable(t *testing.T) {
	persist := &fakePersistence{}
	sender := &fakeSender{err: errors.New("twilio down")}
	e := newTestEngine(NewMemoryStore(), persist, sender)

	out, err := e.Handle(context.Background(), Inbound{From: customer, Body: "hola"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.True(t, out.Logged)
	assert.Len(t, persist.turns, 1)
	assert.Equal(t, StepAwaitingName, out.Step)
}

func TestEngineLogFailureDoesNotBlockReply(t *testing.T) {
	persist := &fakePersistence{logErr: errors.New("readonly")}
	sender := &fakeSender{}
	e := newTestEngine(NewMemoryStore(), persist, sender)

	out := say(t, e, "hola")
	assert.False(t, out.Logged)
	assert.Len(t, sender.sent, 1)
}

func TestEngineRejectsMissingSender(t *testing.T) {
	e := newTestEngine(NewMemoryStore(), &fakePersistence{}, &fakeSender{})
	_, err := e.Handle(context.Background(), Inbound{Body: "hola"})
	assert.ErrorIs(t, err, ErrMissingSender)
}

func TestEngineSerialisesSameCustomer(t *testing.T) {
	store := NewMemoryStore()
	persist := &fakePersistence{}
	e := newTestEngine(store, persist, &fakeSender{})
	require.NoError(t, store.Put(context.Background(), customer, Session{
		Step:  StepAwaitingConfirmation,
		Order: menu.Order{CustomerName: "Ana", Size: menu.SizeM, Addon: menu.AddonNone},
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Handle(context.Background(), Inbound{From: customer, Body: "1"})
		}()
	}
	wg.Wait()

	assert.Len(t, persist.orders, 1)
	assert.Len(t, persist.turns, 8)
	assert.Equal(t, 0, e.locks.size())
}
