// Package dto holds the reply envelope exchanged over the broker in both
// directions: replies this service sends and replies it receives from
// sibling services.
package dto

import (
	"encoding/json"
	"fmt"
)

// Wire names of the error kinds.
const (
	NameNotFound     = "NotFoundError"
	NameInvalidInput = "InvalidInputError"
	NameInternal     = "InternalError"
)

// Response is the {success, data} envelope. When Success is false, Data is
// always an ErrorDto.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorDto describes a failed operation. Code follows HTTP status
// conventions (400, 401, 404, 500) although no HTTP is involved.
type ErrorDto struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

func Fail(e ErrorDto) Response {
	return Response{Success: false, Data: e}
}

// RawResponse is the receiving side of Response: Data is kept undecoded
// until Success says what it holds.
type RawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// DecodeResponse parses an envelope.
func DecodeResponse(body []byte) (RawResponse, error) {
	var r RawResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return r, fmt.Errorf("decode envelope: %w", err)
	}
	return r, nil
}

// ErrorData decodes Data as an ErrorDto. It is meant for failed responses.
func (r RawResponse) ErrorData() (ErrorDto, error) {
	var e ErrorDto
	if err := json.Unmarshal(r.Data, &e); err != nil {
		return e, fmt.Errorf("decode error data: %w", err)
	}
	return e, nil
}

// Into decodes Data into v.
func (r RawResponse) Into(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
