package wa

import (
	"sync"

	"papas-bot/internal/convo"
)

// dispatcher hands inbound messages to handle off the event goroutine while
// keeping each sender's messages in arrival order. Different senders run
// concurrently; one sender has at most one message in flight.
type dispatcher struct {
	mu     sync.Mutex
	queues map[string][]convo.Inbound
	handle func(convo.Inbound)
}

func newDispatcher(handle func(convo.Inbound)) *dispatcher {
	return &dispatcher{
		queues: make(map[string][]convo.Inbound),
		handle: handle,
	}
}

func (d *dispatcher) enqueue(in convo.Inbound) {
	d.mu.Lock()
	queue, running := d.queues[in.From]
	d.queues[in.From] = append(queue, in)
	d.mu.Unlock()

	if !running {
		go d.drain(in.From)
	}
}

// drain runs until the sender's queue is empty, then forgets the sender.
func (d *dispatcher) drain(from string) {
	for {
		d.mu.Lock()
		queue := d.queues[from]
		if len(queue) == 0 {
			delete(d.queues, from)
			d.mu.Unlock()
			return
		}
		next := queue[0]
		d.queues[from] = queue[1:]
		d.mu.Unlock()

		d.handle(next)
	}
}
