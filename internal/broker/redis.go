package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/common"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPollTimeout = time.Second
	defaultReplyTTL    = time.Minute
	errorBackoff       = 500 * time.Millisecond
)

func queueKey(queue string) string { return "queue:" + queue }
func replyKey(id string) string    { return "reply:" + id }

// RedisConnection implements Connection on Redis lists. A queue is the list
// "queue:<name>"; requests are LPUSHed and consumed with BRPOP, so each
// message reaches exactly one consumer. Replies go to a per-client list
// "reply:<uuid>" that expires if nobody collects it.
type RedisConnection struct {
	rdb         *redis.Client
	logger      logging.Logger
	pollTimeout time.Duration
	replyTTL    time.Duration

	mu        sync.Mutex
	consumers map[string]*redisConsumer
	closed    bool
}

// NewRedisConnection connects to the broker at url, e.g. "redis://localhost:6379/0".
func NewRedisConnection(url string, logger logging.Logger) (*RedisConnection, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}
	return NewRedisConnectionFromClient(redis.NewClient(opts), logger), nil
}

// NewRedisConnectionFromClient wraps an existing client; the connection
// takes ownership and closes it on Close.
func NewRedisConnectionFromClient(rdb *redis.Client, logger logging.Logger) *RedisConnection {
	return &RedisConnection{
		rdb:         rdb,
		logger:      logger.With("module", "broker"),
		pollTimeout: defaultPollTimeout,
		replyTTL:    defaultReplyTTL,
		consumers:   make(map[string]*redisConsumer),
	}
}

func (c *RedisConnection) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisConnection) CreateConsumer(cfg ConsumerConfig, h Handler) (Consumer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, common.ErrorClosed
	}
	if _, exists := c.consumers[cfg.Queue]; exists {
		return nil, fmt.Errorf("%w: %s", common.ErrorConsumerExists, cfg.Queue)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rc := &redisConsumer{
		conn:   c,
		worker: newWorker(cfg, h, c.logger),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.consumers[cfg.Queue] = rc

	go rc.loop(ctx)

	return rc, nil
}

func (c *RedisConnection) CreateRPCClient() (RPCClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, common.ErrorClosed
	}
	return &redisRPCClient{conn: c, replyTo: replyKey(uuid.NewString())}, nil
}

// Close releases the underlying client. Consumers should be closed first.
func (c *RedisConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.rdb.Close()
}

func (c *RedisConnection) release(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.consumers, queue)
}

func (c *RedisConnection) reply(ctx context.Context, to string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, to, data)
		p.Expire(ctx, to, c.replyTTL)
		return nil
	})
	return err
}

type redisConsumer struct {
	conn   *RedisConnection
	worker *worker
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (rc *redisConsumer) Queue() string { return rc.worker.queue }

func (rc *redisConsumer) loop(ctx context.Context) {
	defer close(rc.done)

	key := queueKey(rc.worker.queue)
	rc.conn.logger.Info(ctx, "consumer started", "queue", rc.worker.queue)

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := rc.conn.rdb.BRPop(ctx, rc.conn.pollTimeout, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			rc.conn.logger.Error(ctx, "receiving from queue failed", "queue", rc.worker.queue, "error", err)
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		// res is [key, value]
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			rc.conn.logger.Warn(ctx, "discarding malformed message", "queue", rc.worker.queue, "error", err)
			continue
		}

		to := msg.ReplyTo
		rc.worker.dispatch(msg, func(ctx context.Context, reply Message) error {
			return rc.conn.reply(ctx, to, reply)
		})
	}
}

func (rc *redisConsumer) Close(ctx context.Context) error {
	var err error
	rc.once.Do(func() {
		rc.cancel()
		select {
		case <-rc.done:
		case <-ctx.Done():
			err = fmt.Errorf("queue %s: stopping receive loop: %w", rc.worker.queue, ctx.Err())
			return
		}
		err = rc.worker.wait(ctx)
		rc.conn.release(rc.worker.queue)
		rc.conn.logger.Info(ctx, "consumer stopped", "queue", rc.worker.queue)
	})
	return err
}

type redisRPCClient struct {
	conn    *RedisConnection
	replyTo string
}

// Send pushes one request to queue and waits for the reply carrying the same
// correlation id. It waits until ctx is done; there is no retry.
func (r *redisRPCClient) Send(ctx context.Context, queue string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req := Message{CorrelationID: uuid.NewString(), ReplyTo: r.replyTo, Body: payload}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if err := r.conn.rdb.LPush(ctx, queueKey(queue), data).Err(); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", queue, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := r.conn.rdb.BRPop(ctx, r.conn.pollTimeout, r.replyTo).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if cerr := contextErr(ctx); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("await reply from %s: %w", queue, err)
		}

		var reply Message
		if err := json.Unmarshal([]byte(res[1]), &reply); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorMalformedReply, err)
		}
		if reply.CorrelationID != req.CorrelationID {
			r.conn.logger.Warn(ctx, "discarding reply with unexpected correlation id", "queue", queue)
			continue
		}
		return reply.Body, nil
	}
}

// contextErr reports ctx's error, treating a passed deadline as expired even
// if the socket deadline fired before the context timer did.
func contextErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		return context.DeadlineExceeded
	}
	return nil
}

// Close removes the reply list.
func (r *redisRPCClient) Close() error {
	return r.conn.rdb.Del(context.Background(), r.replyTo).Err()
}
