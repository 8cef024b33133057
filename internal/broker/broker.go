// Package broker is the message-queue transport of the service.
//
// It offers three capabilities and nothing more: named queues, one consumer
// per queue, and request/reply calls where the reply travels to a per-call
// reply address under the request's correlation id. Two implementations are
// provided: Redis lists (RedisConnection) and an in-process broker
// (MemoryConnection) used by tests and local runs.
package broker

import (
	"context"
	"encoding/json"
)

// Handler processes one request body. Its return value is marshalled to
// JSON and sent to the request's reply address; returning is the only way
// to reply, so every delivery gets exactly one reply.
type Handler func(ctx context.Context, body []byte) any

// ConsumerConfig describes a queue binding.
type ConsumerConfig struct {
	Queue string
	// Concurrency bounds the number of deliveries handled at once.
	// Zero means DefaultConcurrency.
	Concurrency int
}

const DefaultConcurrency = 16

// Consumer is an active queue binding.
type Consumer interface {
	Queue() string
	// Close stops receiving and waits for in-flight handlers until ctx is done.
	Close(ctx context.Context) error
}

// RPCClient issues request/reply calls through a dedicated reply address.
// It is not safe for concurrent use; create one per call.
type RPCClient interface {
	Send(ctx context.Context, queue string, body any) ([]byte, error)
	Close() error
}

// Connection is a broker connection shared by all consumers and clients.
type Connection interface {
	CreateConsumer(cfg ConsumerConfig, h Handler) (Consumer, error)
	CreateRPCClient() (RPCClient, error)
	Ping(ctx context.Context) error
	Close() error
}

// Message is the wire form of requests and replies.
type Message struct {
	CorrelationID string          `json:"correlationId"`
	ReplyTo       string          `json:"replyTo,omitempty"`
	Body          json.RawMessage `json:"body"`
}
