package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/client/config"
	"github.com/dmitrijs2005/usersvc/internal/dto"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService binds queue and records the last request body it received.
type fakeService struct {
	bodies chan map[string]any
}

func bind(t *testing.T, conn broker.Connection, queue string, reply any) *fakeService {
	t.Helper()
	f := &fakeService{bodies: make(chan map[string]any, 1)}
	c, err := conn.CreateConsumer(broker.ConsumerConfig{Queue: queue}, func(_ context.Context, body []byte) any {
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		f.bodies <- m
		return reply
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return f
}

func (f *fakeService) last(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-f.bodies:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no request received")
		return nil
	}
}

func stubPrompts(t *testing.T, password string) {
	t.Helper()
	oldPw := getPassword
	getPassword = func(io.Writer) ([]byte, error) { return []byte(password), nil }
	t.Cleanup(func() { getPassword = oldPw })
}

func newTestApp(t *testing.T, input string) (*App, *broker.MemoryConnection, *bytes.Buffer) {
	t.Helper()
	conn := broker.NewMemoryConnection(logging.Nop{})
	var out bytes.Buffer
	cfg := &config.Config{Timeout: 2 * time.Second}
	return newApp(cfg, conn, strings.NewReader(input), &out), conn, &out
}

func TestRun_Get(t *testing.T) {
	app, conn, out := newTestApp(t, "")
	svc := bind(t, conn, "get-user-by-id", dto.OK(map[string]string{"id": "u1", "email": "a@b.c"}))

	require.NoError(t, app.Run(context.Background(), []string{"get", "u1"}))

	assert.Equal(t, map[string]any{"id": "u1"}, svc.last(t))
	assert.Contains(t, out.String(), `"email": "a@b.c"`)
}

func TestRun_ErrorReply(t *testing.T) {
	app, conn, out := newTestApp(t, "")
	bind(t, conn, "delete-user", dto.Fail(dto.ErrorDto{Code: 404, Name: dto.NameNotFound, Message: "User not found."}))

	err := app.Run(context.Background(), []string{"delete", "nope"})

	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, out.String(), "Error 404 NotFoundError: User not found.")
}

func TestRun_Create(t *testing.T) {
	stubPrompts(t, "s3cret")
	app, conn, _ := newTestApp(t, "ann@example.com\nAnn\n")
	svc := bind(t, conn, "create-user", dto.OK(map[string]string{"id": "u1"}))

	require.NoError(t, app.Run(context.Background(), []string{"create"}))

	assert.Equal(t, map[string]any{"email": "ann@example.com", "displayName": "Ann", "password": "s3cret"}, svc.last(t))
}

func TestRun_Auth(t *testing.T) {
	stubPrompts(t, "pw")
	app, conn, _ := newTestApp(t, "")
	svc := bind(t, conn, "authenticate-user", dto.OK(map[string]string{"id": "u1"}))

	require.NoError(t, app.Run(context.Background(), []string{"auth", "ann@example.com"}))

	assert.Equal(t, map[string]any{"email": "ann@example.com", "password": "pw"}, svc.last(t))
}

func TestRun_Update(t *testing.T) {
	stubPrompts(t, "new")
	app, conn, _ := newTestApp(t, "")
	svc := bind(t, conn, "update-user", dto.OK(map[string]string{"id": "u1"}))

	require.NoError(t, app.Run(context.Background(), []string{"update", "u1", "-name", "Annie", "-password"}))

	assert.Equal(t, map[string]any{"id": "u1", "displayName": "Annie", "password": "new"}, svc.last(t))
}

func TestRun_Summaries(t *testing.T) {
	app, conn, _ := newTestApp(t, "")
	svc := bind(t, conn, "get-user-summaries-by-ids", dto.OK([]any{}))

	require.NoError(t, app.Run(context.Background(), []string{"summaries", "u1", "u2"}))

	assert.Equal(t, map[string]any{"ids": []any{"u1", "u2"}}, svc.last(t))
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		nil,
		{"bogus"},
		{"get"},
		{"get", "a", "b"},
		{"summaries"},
		{"update", "u1"},
		{"update"},
	}

	for _, args := range tests {
		app, _, _ := newTestApp(t, "")
		assert.ErrorIs(t, app.Run(context.Background(), args), ErrUsage, "args %v", args)
	}
}

func TestRun_Timeout(t *testing.T) {
	app, _, _ := newTestApp(t, "")
	app.timeout = 50 * time.Millisecond

	err := app.Run(context.Background(), []string{"list"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
