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
	"time"

	"papas-bot/internal/metrics"

	twiliosdk "github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	defaultBaseURL   = "https://api.twilio.com"
	defaultTimeout   = 15 * time.Second
	messagesEndpoint = "messages"
	providerLabel    = "twilio"
)

// ErrUnauthorized indicates Twilio rejected the account credentials.
var ErrUnauthorized = errors.New("twilio unauthorized")

// Config holds Twilio client configuration.
type Config struct {
	// BaseURL overrides the API origin, e.g. for a local proxy.
	BaseURL    string
	AccountSID string
	AuthToken  string
	// From is the sender number, e.g. "whatsapp:+14155238886".
	From    string
	Timeout time.Duration
}

// Client sends WhatsApp messages through the Twilio Messages API.
type Client struct {
	logger     *slog.Logger
	rest       *twiliosdk.RestClient
	accountSID string
	from       string
	metrics    *metrics.Metrics
}

// New creates a Twilio client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" && base != defaultBaseURL {
		if u, err := url.Parse(base); err == nil && u.Host != "" {
			httpClient.Transport = &originRewrite{target: u, next: http.DefaultTransport}
		}
	}

	sdkClient := &twclient.Client{
		Credentials: twclient.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	sdkClient.SetAccountSid(cfg.AccountSID)

	return &Client{
		logger: logger.With("component", "twilio"),
		rest: twiliosdk.NewRestClientWithParams(twiliosdk.ClientParams{
			Username:   cfg.AccountSID,
			Password:   cfg.AuthToken,
			AccountSid: cfg.AccountSID,
			Client:     sdkClient,
		}),
		accountSID: cfg.AccountSID,
		from:       cfg.From,
		metrics:    metrics,
	}
}

// Send delivers text to the recipient. It implements convo.Sender.
func (c *Client) Send(ctx context.Context, to, text string) error {
	if err := ctx.Err(); err != nil {
		c.countOutgoing("error")
		return fmt.Errorf("send message: %w", err)
	}

	params := &openapi.CreateMessageParams{}
	params.SetPathAccountSid(c.accountSID)
	params.SetTo(withChannel(to))
	params.SetFrom(withChannel(c.from))
	params.SetBody(text)

	start := time.Now()
	resp, err := c.rest.Api.CreateMessage(params)
	c.observe(start, err)
	if err != nil {
		c.countOutgoing("error")
		return fmt.Errorf("send message: %w", classifyError(err))
	}

	c.countOutgoing("sent")
	var sid, status string
	if resp != nil {
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		if resp.Status != nil {
			status = *resp.Status
		}
	}
	c.logger.Debug("message sent", "to", to, "sid", sid, "status", status)
	return nil
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	statusLabel := "ok"
	if err != nil {
		statusLabel = "error"
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status != 0 {
			statusLabel = strconv.Itoa(restErr.Status)
		}
	}
	c.metrics.TwilioRequests.WithLabelValues(messagesEndpoint, statusLabel).Inc()
	c.metrics.TwilioLatency.WithLabelValues(messagesEndpoint, statusLabel).Observe(time.Since(start).Seconds())
}

// classifyError maps credential rejections to ErrUnauthorized and keeps the
// SDK error reachable with errors.As.
func classifyError(err error) error {
	var restErr *twclient.TwilioRestError
	if errors.As(err, &restErr) && (restErr.Status == http.StatusUnauthorized || restErr.Status == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}

func (c *Client) countOutgoing(status string) {
	if c.metrics != nil {
		c.metrics.OutgoingMessages.WithLabelValues(providerLabel, status).Inc()
	}
}

// originRewrite sends every SDK request to a fixed scheme and host.
type originRewrite struct {
	target *url.URL
	next   http.RoundTripper
}

func (o *originRewrite) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = o.target.Scheme
	out.URL.Host = o.target.Host
	out.Host = o.target.Host
	return o.next.RoundTrip(out)
}

// withChannel prefixes bare phone numbers with the WhatsApp channel.
func withChannel(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || strings.Contains(addr, ":") {
		return addr
	}
	return "whatsapp:" + addr
}
