package mailqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// Message is one queued mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Config controls queue sizing and delivery.
type Config struct {
	Workers     int
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// Queue delivers messages on a fixed worker pool, decoupled from the
// request that enqueued them. A send failure is reported to the error
// callback and counted; it is never retried.
type Queue struct {
	cfg       Config
	sender    Sender
	onError   func(Message, error)
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	sent      atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
	closeOnce sync.Once

	// mu orders Enqueue against Close: no message enters ch after done is closed.
	mu     sync.RWMutex
	closed bool
}

func New(cfg Config, sender Sender, onError func(Message, error)) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	q := &Queue{
		cfg:     cfg,
		sender:  sender,
		onError: onError,
		ch:      make(chan Message, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.run()
	}

	return q
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		select {
		case msg := <-q.ch:
			q.deliver(msg)
		case <-q.done:
			for {
				select {
				case msg := <-q.ch:
					q.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(msg Message) {
	if q.sender == nil {
		q.failed.Add(1)
		return
	}

	ctx := context.Background()
	if q.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.SendTimeout)
		defer cancel()
	}

	if err := q.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		q.failed.Add(1)
		if q.onError != nil {
			q.onError(msg, err)
		}
		return
	}
	q.sent.Add(1)
}

// Enqueue hands msg to the workers. It reports false when the message was
// dropped: queue closed, buffer full with DropIfFull, or ctx done first.
func (q *Queue) Enqueue(ctx context.Context, msg Message) bool {
	if q == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.dropped.Add(1)
		return false
	}

	if q.cfg.DropIfFull {
		select {
		case q.ch <- msg:
			return true
		case <-q.done:
		default:
		}
		q.dropped.Add(1)
		return false
	}

	select {
	case q.ch <- msg:
		return true
	case <-ctx.Done():
	case <-q.done:
	}
	q.dropped.Add(1)
	return false
}

// Close stops accepting messages and waits for queued ones to be delivered.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.done)
		q.mu.Unlock()
		q.wg.Wait()
	})
}

func (q *Queue) Sent() uint64 {
	if q == nil {
		return 0
	}
	return q.sent.Load()
}

func (q *Queue) Failed() uint64 {
	if q == nil {
		return 0
	}
	return q.failed.Load()
}

func (q *Queue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
