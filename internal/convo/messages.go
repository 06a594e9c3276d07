package convo

import (
	"fmt"
	"strconv"
	"strings"

	"papas-bot/internal/menu"
)

// PaymentDetails is the bank account shown with the payment instructions.
type PaymentDetails struct {
	BusinessName string
	Bank         string
	Account      string
	Holder       string
	RUT          string
	Email        string
}

// DefaultPaymentDetails returns the account used when nothing is configured.
func DefaultPaymentDetails() PaymentDetails {
	return PaymentDetails{
		BusinessName: "Papanatas SPA",
		Bank:         "Banco Estado",
		Account:      "123456789",
		Holder:       "Papanatas SPA",
		RUT:          "12.345.678-9",
		Email:        "pagos@papanatas.cl",
	}
}

func (p PaymentDetails) withDefaults() PaymentDetails {
	def := DefaultPaymentDetails()
	if p.BusinessName == "" {
		p.BusinessName = def.BusinessName
	}
	if p.Bank == "" {
		p.Bank = def.Bank
	}
	if p.Account == "" {
		p.Account = def.Account
	}
	if p.Holder == "" {
		p.Holder = def.Holder
	}
	if p.RUT == "" {
		p.RUT = def.RUT
	}
	if p.Email == "" {
		p.Email = def.Email
	}
	return p
}

// Templates renders every outbound text of the conversation.
type Templates struct {
	payment PaymentDetails
}

// NewTemplates builds templates for the given payment account.
func NewTemplates(payment PaymentDetails) Templates {
	return Templates{payment: payment.withDefaults()}
}

const (
	answerOneTwo      = "Responde con *1* o *2*"
	answerOneTwoThree = "Responde con *1*, *2* o *3*"
)

func (t Templates) Greeting() string {
	return fmt.Sprintf("👋 Hola, somos *%s* 🍟\n\n¿Cómo te llamas?\n✍️ Escribe tu nombre:", t.payment.BusinessName)
}

func (t Templates) WelcomeBack() string {
	return "👋 ¡Hola de nuevo! ¿Quieres hacer un nuevo pedido?\n\n¿Cómo te llamas?\n✍️ Escribe tu nombre:"
}

func (t Templates) NameRequired() string {
	return "❌ Necesitamos tu nombre para continuar.\n\n✍️ Escribe tu nombre:"
}

func (t Templates) SizePrompt(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "¡Hola %s! 😊\n\nSelecciona el tamaño de tus papas:\n", name)
	writeSizeOptions(&b)
	b.WriteString("\n" + answerOneTwoThree)
	return b.String()
}

func (t Templates) NewSizePrompt() string {
	var b strings.Builder
	b.WriteString("Selecciona nuevo tamaño:\n\n")
	writeSizeOptions(&b)
	b.WriteString("\n" + answerOneTwoThree)
	return b.String()
}

func writeSizeOptions(b *strings.Builder) {
	for i, s := range menu.Sizes {
		info, _ := menu.LookupSize(s)
		fmt.Fprintf(b, "%s %s (%d grs - %s)\n", optionKey(i+1), s, info.Grams, money(info.Price))
	}
}

func (t Templates) AddonQuestion() string {
	return "¿Deseas un agregado? 🧀🥓\n\n1️⃣ Sí\n2️⃣ No\n\n" + answerOneTwo
}

func (t Templates) NewAddonQuestion() string {
	return "¿Deseas un nuevo agregado? 🧀🥓\n\n1️⃣ Sí\n2️⃣ No\n\n" + answerOneTwo
}

func (t Templates) AddonTypePrompt(size menu.Size) string {
	premium := menu.AddonPrice(menu.AddonPremium, size)
	extra := menu.AddonPrice(menu.AddonExtraPremium, size)
	var b strings.Builder
	b.WriteString("Selecciona el agregado:\n\n")
	fmt.Fprintf(&b, "1️⃣ Premium (%s) - %s\n", menu.Premium().Name, money(premium))
	fmt.Fprintf(&b, "2️⃣ Extra Premium (%s) - %s\n", menu.ExtraPremium().Name, money(extra))
	fmt.Fprintf(&b, "3️⃣ Premium + Extra Premium - %s\n\n", money(menu.AddonPrice(menu.AddonPremiumExtraPremium, size)))
	b.WriteString(answerOneTwoThree)
	return b.String()
}

func (t Templates) VariantPrompt() string {
	return fmt.Sprintf("¿Qué agregado Extra Premium prefieres?\n\n1️⃣ %s\n2️⃣ %s\n\n%s",
		menu.VariantCarneMechada, menu.VariantPulledPork, answerOneTwo)
}

func (t Templates) DrinkPrompt() string {
	return fmt.Sprintf("¿Deseas bebida en lata (350cc) por %s? 🥤\n\n1️⃣ Sí\n2️⃣ No\n\n%s", money(menu.DrinkPrice), answerOneTwo)
}

// Summary lists the order with its total and asks for final confirmation.
func (t Templates) Summary(o menu.Order) string {
	var b strings.Builder
	b.WriteString("🧾 *Resumen del pedido")
	if o.CustomerName != "" {
		b.WriteString(" de " + o.CustomerName)
	}
	b.WriteString(":*\n")
	info, _ := menu.LookupSize(o.Size)
	fmt.Fprintf(&b, "🍟 Papas %s (%dgr) - %s\n", o.Size, info.Grams, money(info.Price))
	if o.Addon.Selected() {
		fmt.Fprintf(&b, "➕ %s - %s\n", menu.Label(o.Addon, o.AddonVariant), money(menu.AddonPrice(o.Addon, o.Size)))
	}
	if o.Drink {
		fmt.Fprintf(&b, "🥤 Bebida (350cc) - %s\n", money(menu.DrinkPrice))
	}
	fmt.Fprintf(&b, "💰 *Total: %s*\n\n", money(menu.Total(o)))
	b.WriteString("✅ ¿Está bien tu pedido?\n")
	b.WriteString("1️⃣ Sí, confirmar\n")
	b.WriteString("2️⃣ No, modificar")
	return b.String()
}

func (t Templates) ModifyMenu() string {
	return "🔄 *¿Qué deseas modificar?*\n\n1️⃣ Tamaño\n2️⃣ Agregado\n3️⃣ Bebida\n\nSelecciona *1*, *2* o *3*"
}

func (t Templates) AddonChangeQuestion() string {
	return "¿Quieres cambiar también el agregado? 🤔\n\n1️⃣ Sí\n2️⃣ No\n\n" + answerOneTwo
}

// PaymentInstructions thanks the customer and shows where to transfer.
func (t Templates) PaymentInstructions(o menu.Order) string {
	var b strings.Builder
	b.WriteString("🎉 *¡Gracias por tu pedido")
	if o.CustomerName != "" {
		b.WriteString(", " + o.CustomerName)
	}
	b.WriteString("!*\n\n")
	b.WriteString("📋 *Resumen:*\n")
	b.WriteString("🍟 " + string(o.Size))
	if label := menu.Label(o.Addon, o.AddonVariant); label != "" {
		b.WriteString(" + " + label)
	}
	if o.Drink {
		b.WriteString(" + Bebida")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "💰 Total: *%s*\n\n", money(menu.Total(o)))
	b.WriteString("💳 *Datos de transferencia:*\n")
	fmt.Fprintf(&b, "🏦 Banco: %s\n", t.payment.Bank)
	fmt.Fprintf(&b, "💳 Cuenta: %s\n", t.payment.Account)
	fmt.Fprintf(&b, "👤 Titular: %s\n", t.payment.Holder)
	fmt.Fprintf(&b, "🆔 RUT: %s\n", t.payment.RUT)
	fmt.Fprintf(&b, "✉️ Correo: %s\n\n", t.payment.Email)
	b.WriteString("📱 *Envía tu comprobante de pago como imagen o captura de pantalla.*\n\n")
	b.WriteString("Una vez que recibamos tu comprobante, confirmaremos tu pedido y procederemos con la preparación. 🍟")
	return b.String()
}

// ProofReceived confirms that a payment proof arrived.
func (t Templates) ProofReceived(name string) string {
	var b strings.Builder
	b.WriteString("✅ *¡Comprobante recibido")
	if name != "" {
		b.WriteString(", " + name)
	}
	b.WriteString("!*\n\n")
	b.WriteString("🔍 Estamos verificando tu pago...\n\n")
	b.WriteString("📞 Te contactaremos en los próximos minutos para confirmar tu pedido y coordinar la entrega.\n\n")
	b.WriteString("🕐 Tiempo estimado de preparación: *15-20 minutos*\n\n")
	fmt.Fprintf(&b, "¡Gracias por elegir %s! 🍟", t.payment.BusinessName)
	return b.String()
}

func (t Templates) ProofFormatRejected() string {
	return "🚫 *Formato no válido*\n\n" +
		"Por favor envía una *imagen* (JPG, PNG) de tu comprobante de pago.\n\n" +
		"📱 Puedes enviar:\n" +
		"• Foto del comprobante\n" +
		"• Captura de pantalla\n\n" +
		"💡 O escribe 'enviado' si ya realizaste la transferencia."
}

func (t Templates) ProofHelp() string {
	return "📱 *¿Cómo enviar el comprobante?*\n\n" +
		"✅ *Opción 1:* Enviar imagen\n" +
		"1️⃣ Toma foto del comprobante\n" +
		"2️⃣ Adjúntala a este chat\n" +
		"3️⃣ Envíala (sin texto adicional)\n\n" +
		"✅ *Opción 2:* Confirmación por texto\n" +
		"• Escribe: 'enviado' o 'listo'\n\n" +
		"⏰ Horario de verificación: 9:00 AM - 8:00 PM"
}

func (t Templates) ProofNotUnderstood() string {
	return "🤔 *No entendí tu mensaje*\n\n" +
		"📸 *Para enviar comprobante:*\n" +
		"• Adjunta la imagen de tu comprobante\n" +
		"• O escribe 'enviado' si ya pagaste\n\n" +
		"❓ Escribe 'ayuda' para más instrucciones"
}

func (t Templates) ProofWaiting() string {
	return "📱 *Esperando tu comprobante*\n\n" +
		"Por favor:\n" +
		"📸 Envía foto del comprobante, o\n" +
		"✍️ Escribe 'enviado' si ya pagaste\n\n" +
		"💡 Escribe 'ayuda' si necesitas instrucciones"
}

func (t Templates) OrderInProgress(name string) string {
	return fmt.Sprintf("¡Hola %s! 😊\n\n", name) +
		"Tu pedido ya está en proceso. Si necesitas hacer un nuevo pedido, escribe *nuevo* o *hola*.\n\n" +
		"📞 Para consultas sobre tu pedido actual, contáctanos directamente."
}

func (t Templates) RestartInvitation() string {
	return "👋 Escribe *hola* para iniciar un nuevo pedido."
}

func (t Templates) Failure() string {
	return "❌ Ocurrió un error. Por favor, intenta nuevamente escribiendo *hola*."
}

func invalidOption(answer string) string {
	return "❌ Opción no válida. " + answer
}

var optionKeys = []string{"1️⃣", "2️⃣", "3️⃣"}

func optionKey(n int) string {
	if n >= 1 && n <= len(optionKeys) {
		return optionKeys[n-1]
	}
	return strconv.Itoa(n) + "."
}

// money formats an amount with dot thousand separators, e.g. $2.500.
// Four-digit amounts are grouped too; x/text's es locale applies CLDR's
// minimum grouping of two and would print $2500.
func money(amount int) string {
	digits := strconv.Itoa(amount)
	neg := false
	if amount < 0 {
		neg = true
		digits = digits[1:]
	}
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
