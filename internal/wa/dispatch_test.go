package wa

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"papas-bot/internal/convo"
)

type orderedHandler struct {
	mu   sync.Mutex
	got  map[string][]string
	slow string
}

func (h *orderedHandler) Handle(_ context.Context, in convo.Inbound) (convo.Outcome, error) {
	if in.Body == h.slow {
		time.Sleep(50 * time.Millisecond)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.got == nil {
		h.got = map[string][]string{}
	}
	h.got[in.From] = append(h.got[in.From], in.Body)
	return convo.Outcome{}, nil
}

func (h *orderedHandler) bodies(from string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.got[from]...)
}

func TestDispatcherKeepsSenderOrder(t *testing.T) {
	h := &orderedHandler{slow: "1"}
	d := newDispatcher(func(in convo.Inbound) { _, _ = h.Handle(context.Background(), in) })

	for _, body := range []string{"1", "2", "3"} {
		d.enqueue(convo.Inbound{From: "a", Body: body})
	}

	require.Eventually(t, func() bool { return len(h.bodies("a")) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, h.bodies("a"))

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.queues)
}

func TestDispatcherRunsSendersConcurrently(t *testing.T) {
	release := make(chan struct{})
	done := make(chan string, 2)
	d := newDispatcher(func(in convo.Inbound) {
		if in.From == "blocked" {
			<-release
		}
		done <- in.From
	})

	d.enqueue(convo.Inbound{From: "blocked", Body: "hola"})
	d.enqueue(convo.Inbound{From: "free", Body: "hola"})

	select {
	case from := <-done:
		assert.Equal(t, "free", from)
	case <-time.After(time.Second):
		t.Fatal("free sender waited on blocked sender")
	}
	close(release)
	assert.Equal(t, "blocked", <-done)
}

func TestHandleMessageDispatchesInOrder(t *testing.T) {
	h := &orderedHandler{slow: "Ana"}
	c := &Client{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handler: h,
		baseCtx: context.Background(),
	}
	c.inbox = newDispatcher(c.dispatch)

	for _, body := range []string{"Ana", "2", "1"} {
		c.handleMessage(privateEvent(&waProto.Message{Conversation: proto.String(body)}))
	}

	from := "56911111111@s.whatsapp.net"
	require.Eventually(t, func() bool { return len(h.bodies(from)) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Ana", "2", "1"}, h.bodies(from))
}
