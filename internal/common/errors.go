// Package common defines sentinel errors and small helpers shared by the
// storage, transport and service layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Transport-level errors.
	ErrorConsumerExists = errors.New("consumer already registered for queue")
	ErrorClosed         = errors.New("connection closed")
	ErrorMalformedReply = errors.New("malformed reply")
)
