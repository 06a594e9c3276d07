package convo

import (
	"strings"

	"papas-bot/internal/menu"
)

// Media is an attachment reference carried by an inbound message.
type Media struct {
	URL         string
	ContentType string
}

// IsImage reports whether the attachment declares an image content type.
func (m Media) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(m.ContentType)), "image/")
}

// Inbound is one message received from a customer.
type Inbound struct {
	From  string
	Body  string
	Media []Media
}

// Effect is a persistence side effect requested by a transition. Effects are
// executed by the Engine in the order they are returned.
type Effect interface {
	effect()
}

// CreateOrder persists a confirmed order awaiting payment.
type CreateOrder struct {
	Order menu.Order
	Total int
}

// ProofSource tells how a payment was acknowledged.
type ProofSource string

const (
	ProofImage ProofSource = "image"
	ProofText  ProofSource = "text"
)

// ConfirmPayment marks the active order as having received payment proof.
// ProofURL is empty for text confirmations.
type ConfirmPayment struct {
	OrderID  string
	ProofURL string
	Source   ProofSource
}

func (CreateOrder) effect()    {}
func (ConfirmPayment) effect() {}

// Result is the outcome of feeding one inbound message to the machine.
type Result struct {
	// Session is the next state. Ignored when Drop is set.
	Session Session
	// Drop removes the customer's session instead of storing Session.
	Drop    bool
	Reply   string
	Effects []Effect
}

var (
	paidKeywords    = []string{"enviado", "listo", "transferido", "pagado"}
	helpKeywords    = []string{"ayuda", "como", "cómo", "instrucciones"}
	restartKeywords = []string{"nuevo", "hola"}
)

// option is a single row of the transition table: the answer code moves the
// conversation to next after apply mutates the order.
type option struct {
	next    Step
	apply   func(*menu.Order)
	reply   func(Templates, Session) string
	effects func(Session) []Effect
}

// choiceStep is a step answered with an exact option code.
type choiceStep struct {
	invalid string
	options map[string]option
}

func setSize(s menu.Size) func(*menu.Order) {
	return func(o *menu.Order) { o.Size = s }
}

func setAddon(a menu.Addon) func(*menu.Order) {
	return func(o *menu.Order) {
		o.Addon = a
		o.AddonVariant = ""
	}
}

func setVariant(v string) func(*menu.Order) {
	return func(o *menu.Order) { o.AddonVariant = v }
}

func setDrink(d bool) func(*menu.Order) {
	return func(o *menu.Order) { o.Drink = d }
}

func replyAddonQuestion(t Templates, _ Session) string { return t.AddonQuestion() }
func replyNewAddonQuestion(t Templates, _ Session) string { return t.NewAddonQuestion() }
func replyAddonType(t Templates, s Session) string { return t.AddonTypePrompt(s.Order.Size) }
func replyVariant(t Templates, _ Session) string { return t.VariantPrompt() }
func replyDrink(t Templates, _ Session) string { return t.DrinkPrompt() }
func replySummary(t Templates, s Session) string { return t.Summary(s.Order) }
func replyPayment(t Templates, s Session) string { return t.PaymentInstructions(s.Order) }
func replyModifyMenu(t Templates, _ Session) string { return t.ModifyMenu() }
func replyNewSize(t Templates, _ Session) string { return t.NewSizePrompt() }
func replyAddonChangeQuestion(t Templates, _ Session) string { return t.AddonChangeQuestion() }

// createOrderOnce requests a new order row unless the session already owns one.
func createOrderOnce(s Session) []Effect {
	if s.OrderID != "" {
		return nil
	}
	return []Effect{CreateOrder{Order: s.Order, Total: menu.Total(s.Order)}}
}

var choiceSteps = map[Step]choiceStep{
	StepAwaitingSize: {
		invalid: invalidOption(answerOneTwoThree),
		options: map[string]option{
			"1": {next: StepAwaitingAddonChoice, apply: setSize(menu.SizeM), reply: replyAddonQuestion},
			"2": {next: StepAwaitingAddonChoice, apply: setSize(menu.SizeL), reply: replyAddonQuestion},
			"3": {next: StepAwaitingAddonChoice, apply: setSize(menu.SizeXL), reply: replyAddonQuestion},
		},
	},
	StepAwaitingAddonChoice: {
		invalid: invalidOption(answerOneTwo),
		options: map[string]option{
			"1": {next: StepAwaitingAddonType, reply: replyAddonType},
			"2": {next: StepAwaitingDrink, apply: setAddon(menu.AddonNone), reply: replyDrink},
		},
	},
	StepAwaitingAddonType: {
		invalid: invalidOption(answerOneTwoThree),
		options: map[string]option{
			"1": {next: StepAwaitingDrink, apply: setAddon(menu.AddonPremium), reply: replyDrink},
			"2": {next: StepAwaitingVariant, apply: setAddon(menu.AddonExtraPremium), reply: replyVariant},
			"3": {next: StepAwaitingVariant, apply: setAddon(menu.AddonPremiumExtraPremium), reply: replyVariant},
		},
	},
	StepAwaitingVariant: {
		invalid: invalidOption(answerOneTwo),
		options: map[string]option{
			"1": {next: StepAwaitingDrink, apply: setVariant(menu.VariantCarneMechada), reply: replyDrink},
			"2": {next: StepAwaitingDrink, apply: setVariant(menu.VariantPulledPork), reply: replyDrink},
		},
	},
	StepAwaitingDrink: {
		invalid: invalidOption(answerOneTwo),
		options: map[string]option{
			"1": {next: StepAwaitingConfirmation, apply: setDrink(true), reply: replySummary},
			"2": {next: StepAwaitingConfirmation, apply: setDrink(false), reply: replySummary},
		},
	},
	StepAwaitingConfirmation: {
		invalid: invalidOption(answerOneTwo),
		options: map[string]option{
			"1": {next: StepAwaitingProof, reply: replyPayment, effects: createOrderOnce},
			"2": {next: StepModifying, reply: replyModifyMenu},
		},
	},
	StepModifying: {
		invalid: invalidOption(answerOneTwoThree),
		options: map[string]option{
			"1": {next: StepAwaitingNewSize, reply: replyNewSize},
			"2": {next: StepAwaitingAddonChoice, reply: replyNewAddonQuestion},
			"3": {next: StepAwaitingDrink, reply: replyDrink},
		},
	},
	StepAwaitingNewSize: {
		invalid: invalidOption(answerOneTwoThree),
		options: map[string]option{
			"1": {next: StepAskingAddonChange, apply: setSize(menu.SizeM), reply: replyAddonChangeQuestion},
			"2": {next: StepAskingAddonChange, apply: setSize(menu.SizeL), reply: replyAddonChangeQuestion},
			"3": {next: StepAskingAddonChange, apply: setSize(menu.SizeXL), reply: replyAddonChangeQuestion},
		},
	},
	StepAskingAddonChange: {
		invalid: invalidOption(answerOneTwo),
		options: map[string]option{
			"1": {next: StepAwaitingAddonChoice, reply: replyAddonQuestion},
			"2": {next: StepAwaitingConfirmation, reply: replySummary},
		},
	},
}

// Machine is the order conversation state machine. Advance is pure: it never
// touches storage and returns the effects for the caller to run.
type Machine struct {
	tpl Templates
}

// NewMachine creates a machine rendering replies with tpl.
func NewMachine(tpl Templates) *Machine {
	return &Machine{tpl: tpl}
}

// Templates exposes the reply templates used by the machine.
func (m *Machine) Templates() Templates {
	return m.tpl
}

// Advance applies one inbound message to sess.
func (m *Machine) Advance(sess Session, in Inbound) Result {
	text := strings.TrimSpace(in.Body)

	if !sess.Step.Valid() || (sess.Step.requiresSize() && sess.Order.Size == "") {
		return Result{Drop: true, Reply: m.tpl.RestartInvitation()}
	}

	switch sess.Step {
	case StepStart:
		next := NewSession()
		next.Step = StepAwaitingName
		return Result{Session: next, Reply: m.tpl.Greeting()}
	case StepAwaitingName:
		return m.collectName(sess, text)
	case StepAwaitingProof:
		return m.collectProof(sess, text, in.Media)
	case StepCompleted:
		return m.completed(sess, text)
	}

	cs, ok := choiceSteps[sess.Step]
	if !ok {
		return Result{Drop: true, Reply: m.tpl.RestartInvitation()}
	}
	opt, ok := cs.options[text]
	if !ok {
		return Result{Session: sess, Reply: cs.invalid}
	}

	next := sess
	if opt.apply != nil {
		opt.apply(&next.Order)
	}
	next.Step = opt.next
	res := Result{Session: next, Reply: opt.reply(m.tpl, next)}
	if opt.effects != nil {
		res.Effects = opt.effects(next)
	}
	return res
}

func (m *Machine) collectName(sess Session, name string) Result {
	if name == "" {
		return Result{Session: sess, Reply: m.tpl.NameRequired()}
	}
	next := sess
	next.Order.CustomerName = name
	next.Step = StepAwaitingSize
	return Result{Session: next, Reply: m.tpl.SizePrompt(name)}
}

func (m *Machine) collectProof(sess Session, text string, media []Media) Result {
	name := sess.Order.CustomerName
	if len(media) > 0 {
		for _, att := range media {
			if att.IsImage() {
				next := sess
				next.Step = StepCompleted
				return Result{
					Session: next,
					Reply:   m.tpl.ProofReceived(name),
					Effects: []Effect{ConfirmPayment{OrderID: sess.OrderID, ProofURL: att.URL, Source: ProofImage}},
				}
			}
		}
		return Result{Session: sess, Reply: m.tpl.ProofFormatRejected()}
	}

	lower := strings.ToLower(text)
	switch {
	case text == "":
		return Result{Session: sess, Reply: m.tpl.ProofWaiting()}
	case containsAny(lower, paidKeywords):
		next := sess
		next.Step = StepCompleted
		return Result{
			Session: next,
			Reply:   m.tpl.ProofReceived(name),
			Effects: []Effect{ConfirmPayment{OrderID: sess.OrderID, Source: ProofText}},
		}
	case containsAny(lower, helpKeywords):
		return Result{Session: sess, Reply: m.tpl.ProofHelp()}
	default:
		return Result{Session: sess, Reply: m.tpl.ProofNotUnderstood()}
	}
}

func (m *Machine) completed(sess Session, text string) Result {
	if containsAny(strings.ToLower(text), restartKeywords) {
		next := NewSession()
		next.Step = StepAwaitingName
		return Result{Session: next, Reply: m.tpl.WelcomeBack()}
	}
	return Result{Session: sess, Reply: m.tpl.OrderInProgress(sess.Order.CustomerName)}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
