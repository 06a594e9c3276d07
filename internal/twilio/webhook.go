package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"papas-bot/internal/convo"
	"papas-bot/internal/metrics"

	twclient "github.com/twilio/twilio-go/client"
)

const (
	signatureHeader = "X-Twilio-Signature"
	maxMedia        = 10
	emptyTwiML      = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
)

// MessageHandler processes one inbound customer message.
type MessageHandler interface {
	Handle(ctx context.Context, in convo.Inbound) (convo.Outcome, error)
}

// WebhookConfig controls request authentication.
type WebhookConfig struct {
	AuthToken         string
	ValidateSignature bool
	// PublicBaseURL is the externally visible origin used to rebuild the
	// signed URL when running behind a proxy.
	PublicBaseURL string
}

// WebhookHandler receives Twilio incoming message callbacks.
type WebhookHandler struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg       WebhookConfig
	validator twclient.RequestValidator
	handler   MessageHandler
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, cfg WebhookConfig, handler MessageHandler) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "twilio_webhook"),
		metrics:   metrics,
		cfg:       cfg,
		validator: twclient.NewRequestValidator(cfg.AuthToken),
		handler:   handler,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.countError("twilio_webhook")
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if h.cfg.ValidateSignature {
		if err := h.validateSignature(r); err != nil {
			h.logger.Warn("rejected webhook", "error", err)
			h.countError("twilio_webhook_auth")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	in := ParseInbound(r.PostForm)
	_, err := h.handler.Handle(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, convo.ErrMissingSender):
		http.Error(w, "missing From", http.StatusBadRequest)
		return
	case errors.Is(err, convo.ErrDelivery):
		// The turn is already recorded; only the reply did not go out.
		h.logger.Error("reply not delivered", "from", in.From, "error", err)
		http.Error(w, "reply delivery failed", http.StatusBadGateway)
		return
	default:
		h.logger.Error("failed processing webhook", "from", in.From, "error", err)
		h.countError("twilio_webhook_process")
		http.Error(w, "failed to process", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}

// ParseInbound extracts the message fields from a Twilio form payload.
func ParseInbound(form url.Values) convo.Inbound {
	in := convo.Inbound{
		From: strings.TrimSpace(form.Get("From")),
		Body: form.Get("Body"),
	}
	n, err := strconv.Atoi(strings.TrimSpace(form.Get("NumMedia")))
	if err != nil || n < 0 {
		n = 0
	}
	if n > maxMedia {
		n = maxMedia
	}
	for i := 0; i < n; i++ {
		idx := strconv.Itoa(i)
		mediaURL := strings.TrimSpace(form.Get("MediaUrl" + idx))
		if mediaURL == "" {
			continue
		}
		in.Media = append(in.Media, convo.Media{
			URL:         mediaURL,
			ContentType: form.Get("MediaContentType" + idx),
		})
	}
	return in
}

func (h *WebhookHandler) validateSignature(r *http.Request) error {
	got := strings.TrimSpace(r.Header.Get(signatureHeader))
	if got == "" {
		return fmt.Errorf("missing %s header", signatureHeader)
	}
	if !h.validator.Validate(h.requestURL(r), flattenForm(r.PostForm), got) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// flattenForm keeps the first value of each field; Twilio never repeats
// parameter names in message callbacks.
func flattenForm(form url.Values) map[string]string {
	params := make(map[string]string, len(form))
	for k, v := range form {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func (h *WebhookHandler) requestURL(r *http.Request) string {
	if base := strings.TrimRight(h.cfg.PublicBaseURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (h *WebhookHandler) countError(component string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(component).Inc()
	}
}
