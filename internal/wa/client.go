package wa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"papas-bot/internal/convo"
	"papas-bot/internal/metrics"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

const providerLabel = "whatsapp"

// Config holds configuration to initialise the WhatsApp client.
type Config struct {
	StorePath string
	LogLevel  string
	Metrics   *metrics.Metrics
}

// MessageHandler processes inbound customer messages.
type MessageHandler interface {
	Handle(ctx context.Context, in convo.Inbound) (convo.Outcome, error)
}

// Client wraps the WhatsMeow client and associated dependencies.
type Client struct {
	client  *whatsmeow.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	handler MessageHandler
	inbox   *dispatcher
	baseCtx context.Context
}

// New creates a new WhatsApp client instance backed by an SQLite store.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.StorePath == "" {
		return nil, errors.New("store path is required")
	}

	if err := ensureDir(filepath.Dir(cfg.StorePath)); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}

	storeLogger := waLog.Stdout("whatsmeow/sqlstore", cfg.LogLevel, true)
	container, err := sqlstore.New(ctx, "sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout=10000&_pragma=foreign_keys(ON)", cfg.StorePath), storeLogger)
	if err != nil {
		return nil, fmt.Errorf("create sqlstore: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	waLogger := waLog.Stdout("whatsmeow/client", cfg.LogLevel, true)
	client := whatsmeow.NewClient(deviceStore, waLogger)

	wc := &Client{
		client:  client,
		logger:  logger.With("component", "wa"),
		metrics: cfg.Metrics,
		baseCtx: context.Background(),
	}
	wc.inbox = newDispatcher(wc.dispatch)
	client.AddEventHandler(wc.handleEvent)

	return wc, nil
}

// SetMessageHandler registers the handler inbound messages are forwarded to.
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.handler = handler
}

// Start connects the client and handles the QR pairing flow. It blocks until
// ctx is cancelled, then disconnects.
func (c *Client) Start(ctx context.Context) error {
	c.baseCtx = ctx
	if c.client.Store.ID == nil {
		c.logger.Info("pairing required, waiting for QR scan")
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}

		go func() {
			for evt := range qrChan {
				if evt.Event == "code" {
					c.logger.Info("scan the QR code with WhatsApp", "qr", evt.Code)
				} else {
					c.logger.Info("pairing event received", "event", evt.Event)
				}
			}
		}()
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect wa client: %w", err)
	}
	c.logger.Info("whatsapp client connected")

	<-ctx.Done()
	c.Close()
	return nil
}

// Close disconnects the WhatsApp client.
func (c *Client) Close() {
	if c.client != nil {
		c.client.Disconnect()
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(v)
	case *events.Connected:
		c.logger.Info("device connected")
	case *events.Disconnected:
		c.logger.Warn("device disconnected")
	}
}

func (c *Client) handleMessage(evt *events.Message) {
	in, ok := toInbound(evt)
	if !ok {
		return
	}
	c.logger.Debug("received message", "from", in.From, "media", len(in.Media))

	if c.handler == nil {
		return
	}
	// Events arrive on whatsmeow's event goroutine, which must not block on
	// the engine.
	c.inbox.enqueue(in)
}

func (c *Client) dispatch(in convo.Inbound) {
	if _, err := c.handler.Handle(c.baseCtx, in); err != nil {
		c.logger.Error("failed handling message", "from", in.From, "error", err)
	}
}

// toInbound converts a private chat message into an engine inbound. Messages
// sent by this device, group and broadcast messages are ignored.
func toInbound(evt *events.Message) (convo.Inbound, bool) {
	if evt == nil || evt.Message == nil {
		return convo.Inbound{}, false
	}
	if evt.Info.IsFromMe || evt.Info.IsGroup || evt.Info.Chat.Server == types.BroadcastServer {
		return convo.Inbound{}, false
	}

	msg := evt.Message
	in := convo.Inbound{From: evt.Info.Chat.ToNonAD().String()}

	switch {
	case msg.GetConversation() != "":
		in.Body = msg.GetConversation()
	case msg.ExtendedTextMessage != nil:
		in.Body = msg.GetExtendedTextMessage().GetText()
	case msg.ImageMessage != nil:
		img := msg.GetImageMessage()
		in.Body = img.GetCaption()
		in.Media = append(in.Media, convo.Media{URL: mediaRef(img.GetURL(), img.GetDirectPath()), ContentType: img.GetMimetype()})
	case msg.DocumentMessage != nil:
		doc := msg.GetDocumentMessage()
		in.Body = doc.GetCaption()
		in.Media = append(in.Media, convo.Media{URL: mediaRef(doc.GetURL(), doc.GetDirectPath()), ContentType: doc.GetMimetype()})
	case msg.VideoMessage != nil:
		vid := msg.GetVideoMessage()
		in.Body = vid.GetCaption()
		in.Media = append(in.Media, convo.Media{URL: mediaRef(vid.GetURL(), vid.GetDirectPath()), ContentType: vid.GetMimetype()})
	case msg.AudioMessage != nil:
		aud := msg.GetAudioMessage()
		in.Media = append(in.Media, convo.Media{URL: mediaRef(aud.GetURL(), aud.GetDirectPath()), ContentType: aud.GetMimetype()})
	default:
		return convo.Inbound{}, false
	}
	return in, true
}

func mediaRef(url, directPath string) string {
	if url != "" {
		return url
	}
	return directPath
}

// Send delivers text to a customer. It implements convo.Sender.
func (c *Client) Send(ctx context.Context, to, text string) error {
	jid, err := ParseRecipient(to)
	if err != nil {
		c.countOutgoing("error")
		return err
	}
	message := &waProto.Message{Conversation: proto.String(text)}
	if _, err := c.client.SendMessage(ctx, jid, message); err != nil {
		c.countOutgoing("error")
		return fmt.Errorf("send text: %w", err)
	}
	c.countOutgoing("sent")
	return nil
}

// ParseRecipient accepts a full JID or a phone number, optionally prefixed
// with "whatsapp:" and "+".
func ParseRecipient(to string) (types.JID, error) {
	to = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(to), "whatsapp:"))
	if to == "" {
		return types.JID{}, errors.New("empty recipient")
	}
	if strings.Contains(to, "@") {
		jid, err := types.ParseJID(to)
		if err != nil {
			return types.JID{}, fmt.Errorf("parse recipient %q: %w", to, err)
		}
		return jid, nil
	}
	user := strings.TrimPrefix(to, "+")
	for _, r := range user {
		if r < '0' || r > '9' {
			return types.JID{}, fmt.Errorf("parse recipient %q: not a phone number", to)
		}
	}
	return types.NewJID(user, types.DefaultUserServer), nil
}

func (c *Client) countOutgoing(status string) {
	if c.metrics != nil {
		c.metrics.OutgoingMessages.WithLabelValues(providerLabel, status).Inc()
	}
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
