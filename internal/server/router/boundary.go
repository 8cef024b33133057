package router

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/dto"
	"github.com/dmitrijs2005/usersvc/internal/metrics"
	"github.com/dmitrijs2005/usersvc/internal/server/apperr"
)

const (
	msgInternal           = "Internal Server Error."
	msgInvalidCredentials = "Invalid email or password."
)

// handlerFunc does the work of one queue. A nil error means data is the
// success payload.
type handlerFunc func(ctx context.Context, body []byte) (any, error)

type route struct {
	queue   string
	handle  handlerFunc
	mapErrs func(error) dto.ErrorDto
}

// boundary adapts a route to broker.Handler. It is the only place where
// errors become envelopes.
func (r *Router) boundary(rt route) broker.Handler {
	return func(ctx context.Context, body []byte) (reply any) {
		start := time.Now()
		outcome := metrics.OutcomeSuccess

		defer func() {
			if p := recover(); p != nil {
				r.logger.Error(ctx, "handler panicked", "queue", rt.queue, "panic", fmt.Sprint(p))
				reply = dto.Fail(dto.ErrorDto{Code: 500, Name: dto.NameInternal, Message: msgInternal})
				outcome = metrics.OutcomeInternal
			}

			elapsed := time.Since(start)
			r.metrics.Observe(rt.queue, outcome, elapsed)
			r.logger.Info(ctx, "request handled", "queue", rt.queue, "outcome", outcome, "duration", elapsed)
		}()

		data, err := rt.handle(ctx, body)
		if err != nil {
			e := rt.mapErrs(err)
			outcome = outcomeOf(e)
			if outcome == metrics.OutcomeInternal {
				r.logger.Error(ctx, "request failed", "queue", rt.queue, "error", err)
			}
			return dto.Fail(e)
		}
		return dto.OK(data)
	}
}

// mapError passes NotFound and InvalidInput through and reports anything
// else as a generic 500 that carries the error's own message.
func mapError(err error) dto.ErrorDto {
	e, ok := apperr.As(err)
	if !ok {
		return dto.ErrorDto{Code: 500, Name: dto.NameInternal, Message: msgInternal}
	}

	switch e.Kind {
	case apperr.KindNotFound, apperr.KindInvalidInput:
		return e.ToDto()
	default:
		msg := msgInternal
		if e.Message != "" {
			msg = "Internal Server Error: " + e.Message
		}
		return dto.ErrorDto{Code: 500, Name: dto.NameInternal, Message: msg}
	}
}

// mapAuthError reports every NotFound as the same 401 so callers cannot
// tell unknown emails from wrong passwords.
func mapAuthError(err error) dto.ErrorDto {
	if apperr.Is(err, apperr.KindNotFound) {
		return dto.ErrorDto{Code: 401, Name: dto.NameNotFound, Message: msgInvalidCredentials}
	}
	return mapError(err)
}

func outcomeOf(e dto.ErrorDto) string {
	switch e.Name {
	case dto.NameNotFound:
		return metrics.OutcomeNotFound
	case dto.NameInvalidInput:
		return metrics.OutcomeInvalidInput
	default:
		return metrics.OutcomeInternal
	}
}
