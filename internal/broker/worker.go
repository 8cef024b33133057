package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/usersvc/internal/dto"
	"github.com/dmitrijs2005/usersvc/internal/logging"
)

// fallbackReply is sent when a handler panics or its reply cannot be encoded.
var fallbackReply = dto.Fail(dto.ErrorDto{Code: 500, Name: dto.NameInternal, Message: "Internal Server Error."})

type replyFunc func(ctx context.Context, msg Message) error

// worker runs a Handler for each delivery of one queue, at most
// cap(sem) at a time.
type worker struct {
	queue   string
	handler Handler
	logger  logging.Logger
	sem     chan struct{}
	wg      sync.WaitGroup
}

func newWorker(cfg ConsumerConfig, h Handler, logger logging.Logger) *worker {
	n := cfg.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	return &worker{
		queue:   cfg.Queue,
		handler: h,
		logger:  logger.With("queue", cfg.Queue),
		sem:     make(chan struct{}, n),
	}
}

// dispatch blocks until a slot is free, then handles msg in its own
// goroutine. msg has already left the queue, so it is handled even when the
// consumer is closing; Close waits for it like any in-flight handler.
func (w *worker) dispatch(msg Message, reply replyFunc) {
	w.sem <- struct{}{}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()

		hctx := logging.WithCorrelationID(context.Background(), msg.CorrelationID)
		w.handle(hctx, msg, reply)
	}()
}

func (w *worker) handle(ctx context.Context, msg Message, reply replyFunc) {
	body := w.invoke(ctx, msg.Body)

	if msg.ReplyTo == "" {
		w.logger.Warn(ctx, "request has no reply address, reply dropped")
		return
	}

	if err := reply(ctx, Message{CorrelationID: msg.CorrelationID, Body: body}); err != nil {
		w.logger.Error(ctx, "sending reply failed", "reply_to", msg.ReplyTo, "error", err)
	}
}

func (w *worker) invoke(ctx context.Context, body []byte) (out json.RawMessage) {
	defer func() {
		if p := recover(); p != nil {
			w.logger.Error(ctx, "handler panicked", "panic", fmt.Sprint(p))
			out, _ = json.Marshal(fallbackReply)
		}
	}()

	result := w.handler(ctx, body)
	b, err := json.Marshal(result)
	if err != nil {
		w.logger.Error(ctx, "encoding reply failed", "error", err)
		b, _ = json.Marshal(fallbackReply)
	}
	return b
}

// wait blocks until in-flight handlers finish or ctx is done.
func (w *worker) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s: waiting for in-flight handlers: %w", w.queue, ctx.Err())
	}
}
