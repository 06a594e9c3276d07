package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"papas-bot/internal/menu"
	"papas-bot/internal/metrics"
)

var (
	// ErrDelivery marks a turn that was processed and logged but whose reply
	// could not be sent.
	ErrDelivery = errors.New("reply delivery failed")
	// ErrMissingSender is returned for inbound messages without a customer id.
	ErrMissingSender = errors.New("inbound message without sender")
)

const defaultOpTimeout = 10 * time.Second

// Turn is one processed inbound message as written to the conversation log.
type Turn struct {
	CustomerID string
	Inbound    string
	Outbound   string
	Step       Step
	Snapshot   *Session
	At         time.Time
}

// Persistence is the storage capability the engine writes through.
type Persistence interface {
	// CreateOrder stores a confirmed order with status awaiting payment and
	// returns its identifier.
	CreateOrder(ctx context.Context, customerID string, order menu.Order, total int) (string, error)
	// ConfirmPayment moves the order to proof received. An empty orderID
	// targets the customer's latest order. proofURL may be empty.
	ConfirmPayment(ctx context.Context, customerID, orderID, proofURL string) error
	LogTurn(ctx context.Context, turn Turn) error
}

// Sender delivers a text reply to a customer.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// EngineConfig carries engine tunables.
type EngineConfig struct {
	Payment PaymentDetails
	// OpTimeout bounds each storage and delivery call.
	OpTimeout time.Duration
}

// Outcome describes what happened to one inbound message.
type Outcome struct {
	Reply   string
	Step    Step
	Dropped bool
	Logged  bool
}

// Engine runs inbound messages through the Machine, executes the resulting
// effects and delivers the reply. Messages from the same customer are
// handled one at a time.
type Engine struct {
	machine   *Machine
	store     SessionStore
	persist   Persistence
	sender    Sender
	metrics   *metrics.Metrics
	logger    *slog.Logger
	locks     *keyedMutex
	opTimeout time.Duration
	now       func() time.Time
}

// New wires an Engine.
func New(store SessionStore, persist Persistence, sender Sender, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	timeout := cfg.OpTimeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Engine{
		machine:   NewMachine(NewTemplates(cfg.Payment)),
		store:     store,
		persist:   persist,
		sender:    sender,
		metrics:   metricRegistry,
		logger:    logger.With("component", "convo"),
		locks:     newKeyedMutex(),
		opTimeout: timeout,
		now:       time.Now,
	}
}

// Handle processes one inbound message end to end. The conversation turn is
// logged before the reply is sent; a failed send is reported with ErrDelivery.
func (e *Engine) Handle(ctx context.Context, in Inbound) (Outcome, error) {
	if in.From == "" {
		return Outcome{}, ErrMissingSender
	}
	e.countIncoming(in)

	unlock := e.locks.Lock(in.From)
	defer unlock()

	res, err := e.process(ctx, in)
	if err != nil {
		e.logger.Error("failed processing message, resetting session", "from", in.From, "error", err)
		e.countError("convo")
		e.countReset("failure")
		if delErr := e.deleteSession(ctx, in.From); delErr != nil {
			e.logger.Warn("failed dropping session", "from", in.From, "error", delErr)
		}
		res = Result{Drop: true, Reply: e.machine.Templates().Failure()}
	}

	out := Outcome{Reply: res.Reply, Step: StepStart, Dropped: res.Drop}
	var snapshot *Session
	if !res.Drop {
		out.Step = res.Session.Step
		s := res.Session
		snapshot = &s
	}
	if e.metrics != nil {
		e.metrics.StepTransitions.WithLabelValues(string(out.Step)).Inc()
	}

	turn := Turn{
		CustomerID: in.From,
		Inbound:    in.Body,
		Outbound:   res.Reply,
		Step:       out.Step,
		Snapshot:   snapshot,
		At:         e.now().UTC(),
	}
	logCtx, cancel := e.bounded(ctx)
	err = e.persist.LogTurn(logCtx, turn)
	cancel()
	if err != nil {
		e.logger.Error("failed logging conversation turn", "from", in.From, "step", out.Step, "error", err)
		e.countError("conversation_log")
	} else {
		out.Logged = true
	}

	sendCtx, cancel := e.bounded(ctx)
	defer cancel()
	if err := e.sender.Send(sendCtx, in.From, res.Reply); err != nil {
		e.logger.Error("failed sending reply", "to", in.From, "step", out.Step, "error", err)
		e.countError("delivery")
		return out, fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	return out, nil
}

func (e *Engine) process(ctx context.Context, in Inbound) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	getCtx, cancel := e.bounded(ctx)
	sess, ok, err := e.store.Get(getCtx, in.From)
	cancel()
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	if !ok {
		sess = NewSession()
	}

	prev := sess.Step
	res = e.machine.Advance(sess, in)
	for _, eff := range res.Effects {
		if err := e.apply(ctx, in.From, &res, eff); err != nil {
			return Result{}, err
		}
	}

	switch {
	case res.Drop:
		e.logger.Warn("session reset", "from", in.From, "step", prev)
		e.countReset("invalid_step")
		if err := e.deleteSession(ctx, in.From); err != nil {
			return Result{}, fmt.Errorf("drop session: %w", err)
		}
	default:
		if prev == StepCompleted && res.Session.Step == StepAwaitingName {
			e.countReset("restart")
		}
		putCtx, cancel := e.bounded(ctx)
		err := e.store.Put(putCtx, in.From, res.Session)
		cancel()
		if err != nil {
			return Result{}, fmt.Errorf("store session: %w", err)
		}
	}

	e.logger.Debug("conversation advanced", "from", in.From, "from_step", prev, "to_step", res.Session.Step, "drop", res.Drop)
	return res, nil
}

func (e *Engine) apply(ctx context.Context, customerID string, res *Result, eff Effect) error {
	opCtx, cancel := e.bounded(ctx)
	defer cancel()

	switch v := eff.(type) {
	case CreateOrder:
		id, err := e.persist.CreateOrder(opCtx, customerID, v.Order, v.Total)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		res.Session.OrderID = id
		if e.metrics != nil {
			e.metrics.OrdersCreated.Inc()
		}
		e.logger.Info("order created", "from", customerID, "order_id", id, "total", v.Total)
	case ConfirmPayment:
		if e.metrics != nil {
			e.metrics.ProofsReceived.WithLabelValues(string(v.Source)).Inc()
		}
		// The customer is told the proof arrived even if the update fails.
		if err := e.persist.ConfirmPayment(opCtx, customerID, v.OrderID, v.ProofURL); err != nil {
			e.logger.Error("failed confirming payment", "from", customerID, "order_id", v.OrderID, "source", v.Source, "error", err)
			e.countError("confirm_payment")
			return nil
		}
		e.logger.Info("payment proof received", "from", customerID, "order_id", v.OrderID, "source", v.Source)
	default:
		return fmt.Errorf("unknown effect %T", eff)
	}
	return nil
}

func (e *Engine) deleteSession(ctx context.Context, customerID string) error {
	opCtx, cancel := e.bounded(ctx)
	defer cancel()
	return e.store.Delete(opCtx, customerID)
}

func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.opTimeout)
}

func (e *Engine) countIncoming(in Inbound) {
	if e.metrics == nil {
		return
	}
	kind := "text"
	switch {
	case len(in.Media) > 0:
		kind = "media"
	case in.Body == "":
		kind = "empty"
	}
	e.metrics.IncomingMessages.WithLabelValues(kind).Inc()
}

func (e *Engine) countError(component string) {
	if e.metrics != nil {
		e.metrics.Errors.WithLabelValues(component).Inc()
	}
}

func (e *Engine) countReset(reason string) {
	if e.metrics != nil {
		e.metrics.SessionResets.WithLabelValues(reason).Inc()
	}
}
