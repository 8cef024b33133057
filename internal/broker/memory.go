package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/usersvc/internal/common"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/google/uuid"
)

const memoryQueueBuffer = 256

// MemoryConnection is an in-process broker with the same delivery
// semantics as RedisConnection. Messages are marshalled on the way through
// so handlers see exactly the bytes a remote peer would send.
type MemoryConnection struct {
	logger logging.Logger

	mu        sync.Mutex
	queues    map[string]chan Message
	replies   map[string]chan Message
	consumers map[string]*memoryConsumer
	closed    bool
}

func NewMemoryConnection(logger logging.Logger) *MemoryConnection {
	return &MemoryConnection{
		logger:    logger.With("module", "broker"),
		queues:    make(map[string]chan Message),
		replies:   make(map[string]chan Message),
		consumers: make(map[string]*memoryConsumer),
	}
}

func (c *MemoryConnection) queue(name string) chan Message {
	q, ok := c.queues[name]
	if !ok {
		q = make(chan Message, memoryQueueBuffer)
		c.queues[name] = q
	}
	return q
}

func (c *MemoryConnection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return common.ErrorClosed
	}
	return nil
}

func (c *MemoryConnection) CreateConsumer(cfg ConsumerConfig, h Handler) (Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, common.ErrorClosed
	}
	if _, exists := c.consumers[cfg.Queue]; exists {
		return nil, fmt.Errorf("%w: %s", common.ErrorConsumerExists, cfg.Queue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	mc := &memoryConsumer{
		conn:   c,
		worker: newWorker(cfg, h, c.logger),
		in:     c.queue(cfg.Queue),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.consumers[cfg.Queue] = mc

	go mc.loop(ctx)

	return mc, nil
}

func (c *MemoryConnection) CreateRPCClient() (RPCClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, common.ErrorClosed
	}
	key := replyKey(uuid.NewString())
	ch := make(chan Message, 1)
	c.replies[key] = ch
	return &memoryRPCClient{conn: c, replyTo: key, in: ch}, nil
}

func (c *MemoryConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MemoryConnection) publish(ctx context.Context, queue string, msg Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return common.ErrorClosed
	}
	q := c.queue(queue)
	c.mu.Unlock()

	select {
	case q <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliver hands a reply to its reply address. Replies to an address that
// no longer exists are dropped, as an expired Redis reply list would be.
func (c *MemoryConnection) deliver(to string, msg Message) error {
	c.mu.Lock()
	ch, ok := c.replies[to]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case ch <- msg:
	default:
		c.logger.Warn(context.Background(), "reply buffer full, reply dropped", "reply_to", to)
	}
	return nil
}

func (c *MemoryConnection) release(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.consumers, queue)
}

func (c *MemoryConnection) dropReply(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.replies, key)
}

type memoryConsumer struct {
	conn   *MemoryConnection
	worker *worker
	in     chan Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (mc *memoryConsumer) Queue() string { return mc.worker.queue }

func (mc *memoryConsumer) loop(ctx context.Context) {
	defer close(mc.done)

	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case msg := <-mc.in:
			to := msg.ReplyTo
			mc.worker.dispatch(msg, func(_ context.Context, reply Message) error {
				return mc.conn.deliver(to, reply)
			})
		}
	}
}

func (mc *memoryConsumer) Close(ctx context.Context) error {
	var err error
	mc.once.Do(func() {
		mc.cancel()
		select {
		case <-mc.done:
		case <-ctx.Done():
			err = fmt.Errorf("queue %s: stopping receive loop: %w", mc.worker.queue, ctx.Err())
			return
		}
		err = mc.worker.wait(ctx)
		mc.conn.release(mc.worker.queue)
	})
	return err
}

type memoryRPCClient struct {
	conn    *MemoryConnection
	replyTo string
	in      chan Message
}

func (r *memoryRPCClient) Send(ctx context.Context, queue string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req := Message{CorrelationID: uuid.NewString(), ReplyTo: r.replyTo, Body: payload}
	if err := r.conn.publish(ctx, queue, req); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case reply := <-r.in:
			if reply.CorrelationID != req.CorrelationID {
				continue
			}
			return reply.Body, nil
		}
	}
}

func (r *memoryRPCClient) Close() error {
	r.conn.dropReply(r.replyTo)
	return nil
}
