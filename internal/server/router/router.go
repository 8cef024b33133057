// Package router binds the user operations to their broker queues.
//
// Every handler returns its reply envelope; a boundary around each handler
// turns panics and errors into envelopes, so every delivery gets exactly one
// well-formed reply.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/dmitrijs2005/usersvc/internal/metrics"
	"github.com/dmitrijs2005/usersvc/internal/server/users"
	"golang.org/x/sync/errgroup"
)

// Queue names.
const (
	QueueAuthenticate     = "authenticate-user"
	QueueGetAll           = "get-all-users"
	QueueGetByID          = "get-user-by-id"
	QueueGetSummariesByID = "get-user-summaries-by-ids"
	QueueCreate           = "create-user"
	QueueUpdate           = "update-user"
	QueueDelete           = "delete-user"
)

var (
	ErrAlreadyStarted = errors.New("router already started")
	ErrStopped        = errors.New("router stopped")
)

// UserService is the domain surface the router dispatches to.
type UserService interface {
	Authenticate(ctx context.Context, email, password string) (*users.User, error)
	ListAll(ctx context.Context) ([]*users.User, error)
	GetByID(ctx context.Context, id string) (*users.User, error)
	GetSummariesByIDs(ctx context.Context, ids []string) ([]users.UserSummary, error)
	Create(ctx context.Context, email, password, displayName string) (*users.User, error)
	Update(ctx context.Context, id string, upd users.Update) (*users.User, error)
	DeleteByID(ctx context.Context, id string) (*users.User, error)
}

type state int

const (
	stateIdle state = iota
	stateStarted
	stateStopped
)

// Router owns the queue bindings and the broker connection.
type Router struct {
	conn        broker.Connection
	svc         UserService
	logger      logging.Logger
	metrics     *metrics.HandlerMetrics
	concurrency int

	mu        sync.Mutex
	state     state
	consumers []broker.Consumer
	stopOnce  sync.Once
	stopErr   error
}

// New returns a stopped Router. m may be nil; concurrency bounds in-flight
// requests per queue, zero meaning broker.DefaultConcurrency.
func New(conn broker.Connection, svc UserService, logger logging.Logger, m *metrics.HandlerMetrics, concurrency int) *Router {
	return &Router{
		conn:        conn,
		svc:         svc,
		logger:      logger.With("module", "router"),
		metrics:     m,
		concurrency: concurrency,
	}
}

func (r *Router) routes() []route {
	return []route{
		{QueueAuthenticate, r.authenticate, mapAuthError},
		{QueueGetAll, r.getAll, mapError},
		{QueueGetByID, r.getByID, mapError},
		{QueueGetSummariesByID, r.getSummaries, mapError},
		{QueueCreate, r.create, mapError},
		{QueueUpdate, r.update, mapError},
		{QueueDelete, r.delete, mapError},
	}
}

// Start binds every queue. If one binding fails the others are released
// and the router stays stopped.
func (r *Router) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateStarted:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrStopped
	}

	for _, rt := range r.routes() {
		c, err := r.conn.CreateConsumer(
			broker.ConsumerConfig{Queue: rt.queue, Concurrency: r.concurrency},
			r.boundary(rt),
		)
		if err != nil {
			if cerr := closeAll(ctx, r.consumers); cerr != nil {
				r.logger.Warn(ctx, "releasing partial bindings failed", "error", cerr)
			}
			r.consumers = nil
			return fmt.Errorf("bind %s: %w", rt.queue, err)
		}
		r.consumers = append(r.consumers, c)
	}

	r.state = stateStarted
	r.logger.Info(ctx, "router started", "queues", len(r.consumers))
	return nil
}

// Stop closes all bindings concurrently, waits for all of them, then
// closes the connection. Only the first call does anything; later calls
// return its result.
func (r *Router) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		consumers := r.consumers
		r.consumers = nil
		r.state = stateStopped
		r.mu.Unlock()

		r.logger.Info(ctx, "stopping router", "queues", len(consumers))

		err := closeAll(ctx, consumers)
		if cerr := r.conn.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", cerr))
		}
		r.stopErr = err

		r.logger.Info(ctx, "router stopped")
	})
	return r.stopErr
}

// Started reports whether the queue bindings are active.
func (r *Router) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == stateStarted
}

func closeAll(ctx context.Context, consumers []broker.Consumer) error {
	var g errgroup.Group
	for _, c := range consumers {
		g.Go(func() error {
			return c.Close(ctx)
		})
	}
	return g.Wait()
}
