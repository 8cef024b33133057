package router

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/cryptox"
	"github.com/dmitrijs2005/usersvc/internal/dto"
	"github.com/dmitrijs2005/usersvc/internal/logging"
	"github.com/dmitrijs2005/usersvc/internal/metrics"
	"github.com/dmitrijs2005/usersvc/internal/server/cascade"
	"github.com/dmitrijs2005/usersvc/internal/server/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siblingQueue = "delete-videos-by-user-id"

type env struct {
	conn    *broker.MemoryConnection
	router  *Router
	metrics *metrics.HandlerMetrics
	// cascadeReply is what the fake sibling service answers.
	cascadeReply chan any
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conn := broker.NewMemoryConnection(logging.Nop{})

	hasher, err := cryptox.NewHasher([]byte("pepper"), cryptox.Argon2Params{Memory: 1024, Time: 1, Threads: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	e := &env{conn: conn, cascadeReply: make(chan any, 1)}

	sibling, err := conn.CreateConsumer(broker.ConsumerConfig{Queue: siblingQueue}, func(context.Context, []byte) any {
		select {
		case r := <-e.cascadeReply:
			return r
		default:
			return dto.OK(true)
		}
	})
	require.NoError(t, err)

	deps := cascade.NewClient(conn, siblingQueue, 2*time.Second, logging.Nop{}, nil)
	svc := users.NewService(users.NewInMemoryRepository(), hasher, deps, logging.Nop{})

	e.metrics = metrics.NewHandlerMetrics(prometheus.NewRegistry())
	e.router = New(conn, svc, logging.Nop{}, e.metrics, 4)
	require.NoError(t, e.router.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sibling.Close(ctx)
		_ = e.router.Stop(ctx)
	})
	return e
}

func (e *env) call(t *testing.T, queue string, body any) dto.RawResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rpc, err := e.conn.CreateRPCClient()
	require.NoError(t, err)
	defer rpc.Close()

	raw, err := rpc.Send(ctx, queue, body)
	require.NoError(t, err)

	resp, err := dto.DecodeResponse(raw)
	require.NoError(t, err)
	return resp
}

func requireFailure(t *testing.T, resp dto.RawResponse, code int, name string) dto.ErrorDto {
	t.Helper()
	require.False(t, resp.Success)
	e, err := resp.ErrorData()
	require.NoError(t, err)
	assert.Equal(t, code, e.Code)
	assert.Equal(t, name, e.Name)
	return e
}

func (e *env) createUser(t *testing.T, email, password, name string) users.User {
	t.Helper()
	resp := e.call(t, QueueCreate, map[string]string{"email": email, "password": password, "displayName": name})
	require.True(t, resp.Success, string(resp.Data))
	var u users.User
	require.NoError(t, resp.Into(&u))
	return u
}

func TestCreateUser_EmptyRequest(t *testing.T) {
	e := newEnv(t)

	resp := e.call(t, QueueCreate, map[string]any{})
	got := requireFailure(t, resp, 400, dto.NameInvalidInput)
	assert.Equal(t, msgCreateFieldsRequired, got.Message)
}

func TestCreateUser_MissingOrNullFields(t *testing.T) {
	e := newEnv(t)

	for _, body := range []any{
		nil,
		map[string]any{"email": "a@b.c", "password": "pw"},
		map[string]any{"email": "a@b.c", "password": nil, "displayName": "A"},
		map[string]any{"email": "", "password": "pw", "displayName": "A"},
	} {
		resp := e.call(t, QueueCreate, body)
		requireFailure(t, resp, 400, dto.NameInvalidInput)
	}
}

func TestCreateThenAuthenticate(t *testing.T) {
	e := newEnv(t)
	created := e.createUser(t, "ann@example.com", "s3cret", "Ann")
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "ann@example.com", created.Email)

	resp := e.call(t, QueueAuthenticate, map[string]string{"email": "ann@example.com", "password": "s3cret"})
	require.True(t, resp.Success)
	assert.NotContains(t, string(resp.Data), "s3cret")
	assert.NotContains(t, string(resp.Data), "password")

	var u users.User
	require.NoError(t, resp.Into(&u))
	assert.Equal(t, created.ID, u.ID)
}

func TestAuthenticate_DoesNotRevealWhichPartIsWrong(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "ann@example.com", "s3cret", "Ann")

	wrongPassword := requireFailure(t, e.call(t, QueueAuthenticate, map[string]string{"email": "ann@example.com", "password": "nope"}), 401, dto.NameNotFound)
	unknownEmail := requireFailure(t, e.call(t, QueueAuthenticate, map[string]string{"email": "bob@example.com", "password": "s3cret"}), 401, dto.NameNotFound)

	assert.Equal(t, wrongPassword, unknownEmail)
	assert.Equal(t, msgInvalidCredentials, wrongPassword.Message)
}

func TestAuthenticate_MissingFields(t *testing.T) {
	e := newEnv(t)

	got := requireFailure(t, e.call(t, QueueAuthenticate, map[string]string{"email": "ann@example.com"}), 400, dto.NameInvalidInput)
	assert.Equal(t, msgCredentialsRequired, got.Message)
}

func TestMalformedBody(t *testing.T) {
	e := newEnv(t)

	// a JSON string is valid JSON but not an object
	got := requireFailure(t, e.call(t, QueueGetByID, "u1"), 400, dto.NameInvalidInput)
	assert.Equal(t, msgMalformedBody, got.Message)
}

func TestGetAllUsers(t *testing.T) {
	e := newEnv(t)

	resp := e.call(t, QueueGetAll, nil)
	require.True(t, resp.Success)
	assert.JSONEq(t, `[]`, string(resp.Data))

	e.createUser(t, "a@example.com", "pw", "A")
	e.createUser(t, "b@example.com", "pw", "B")

	resp = e.call(t, QueueGetAll, nil)
	var list []users.User
	require.NoError(t, resp.Into(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "a@example.com", list[0].Email)
	assert.Equal(t, "b@example.com", list[1].Email)
}

func TestGetUserByID(t *testing.T) {
	e := newEnv(t)
	u := e.createUser(t, "a@example.com", "pw", "A")

	resp := e.call(t, QueueGetByID, map[string]string{"id": u.ID})
	require.True(t, resp.Success)

	got := requireFailure(t, e.call(t, QueueGetByID, map[string]string{"id": "missing-id"}), 404, dto.NameNotFound)
	assert.Equal(t, "User not found.", got.Message)

	got = requireFailure(t, e.call(t, QueueGetByID, map[string]any{}), 400, dto.NameInvalidInput)
	assert.Equal(t, msgUserIDRequired, got.Message)
}

func TestGetUserSummaries(t *testing.T) {
	e := newEnv(t)
	a := e.createUser(t, "a@example.com", "pw", "A")

	resp := e.call(t, QueueGetSummariesByID, map[string]any{"ids": []string{a.ID, "missing-id"}})
	require.True(t, resp.Success)
	var list []users.UserSummary
	require.NoError(t, resp.Into(&list))
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	requireFailure(t, e.call(t, QueueGetSummariesByID, map[string]any{}), 400, dto.NameInvalidInput)
}

func TestUpdateUser_MissingID(t *testing.T) {
	e := newEnv(t)

	resp := e.call(t, QueueUpdate, map[string]string{"id": "missing-id", "displayName": "X"})
	requireFailure(t, resp, 404, dto.NameNotFound)

	resp = e.call(t, QueueUpdate, map[string]string{"displayName": "X"})
	requireFailure(t, resp, 400, dto.NameInvalidInput)
}

func TestUpdateUser(t *testing.T) {
	e := newEnv(t)
	u := e.createUser(t, "a@example.com", "pw", "A")

	resp := e.call(t, QueueUpdate, map[string]string{"id": u.ID, "displayName": "Alice", "password": "new"})
	require.True(t, resp.Success)
	var got users.User
	require.NoError(t, resp.Into(&got))
	require.NotNil(t, got.DisplayName)
	assert.Equal(t, "Alice", *got.DisplayName)
	assert.Equal(t, "a@example.com", got.Email)

	require.True(t, e.call(t, QueueAuthenticate, map[string]string{"email": "a@example.com", "password": "new"}).Success)
}

func TestUpdateUser_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	e.createUser(t, "a@example.com", "pw", "A")
	b := e.createUser(t, "b@example.com", "pw", "B")

	requireFailure(t, e.call(t, QueueUpdate, map[string]string{"id": b.ID, "email": "a@example.com"}), 400, dto.NameInvalidInput)
}

func TestDeleteUser_CascadeReportsFalse(t *testing.T) {
	e := newEnv(t)
	u := e.createUser(t, "a@example.com", "pw", "A")

	e.cascadeReply <- dto.OK(false)
	got := requireFailure(t, e.call(t, QueueDelete, map[string]string{"id": u.ID}), 500, dto.NameInternal)
	assert.Contains(t, got.Message, "Internal Server Error")

	assert.True(t, e.call(t, QueueGetByID, map[string]string{"id": u.ID}).Success)
}

func TestDeleteUser_CascadeFails(t *testing.T) {
	e := newEnv(t)
	u := e.createUser(t, "a@example.com", "pw", "A")

	e.cascadeReply <- dto.Fail(dto.ErrorDto{Code: 404, Name: dto.NameNotFound, Message: "No videos."})
	requireFailure(t, e.call(t, QueueDelete, map[string]string{"id": u.ID}), 500, dto.NameInternal)

	assert.True(t, e.call(t, QueueGetByID, map[string]string{"id": u.ID}).Success)
}

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	u := e.createUser(t, "a@example.com", "pw", "A")

	resp := e.call(t, QueueDelete, map[string]string{"id": u.ID})
	require.True(t, resp.Success)
	var got users.User
	require.NoError(t, resp.Into(&got))
	assert.Equal(t, u.ID, got.ID)

	requireFailure(t, e.call(t, QueueGetByID, map[string]string{"id": u.ID}), 404, dto.NameNotFound)
	requireFailure(t, e.call(t, QueueDelete, map[string]string{"id": u.ID}), 404, dto.NameNotFound)
	requireFailure(t, e.call(t, QueueDelete, nil), 400, dto.NameInvalidInput)
}

func TestHandlerMetricsRecorded(t *testing.T) {
	e := newEnv(t)

	e.call(t, QueueCreate, map[string]any{})
	e.call(t, QueueGetAll, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Requests.WithLabelValues(QueueCreate, metrics.OutcomeInvalidInput)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.Requests.WithLabelValues(QueueGetAll, metrics.OutcomeSuccess)))
}

func TestRouter_Lifecycle(t *testing.T) {
	conn := broker.NewMemoryConnection(logging.Nop{})
	r := New(conn, panickingService{}, logging.Nop{}, nil, 0)
	ctx := context.Background()

	assert.False(t, r.Started())
	require.NoError(t, r.Start(ctx))
	assert.True(t, r.Started())
	assert.ErrorIs(t, r.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx))
	assert.False(t, r.Started())
	assert.ErrorIs(t, r.Start(ctx), ErrStopped)

	_, err := conn.CreateRPCClient()
	assert.Error(t, err, "connection must be closed after Stop")
}

func TestRouter_StartFailureReleasesBindings(t *testing.T) {
	conn := broker.NewMemoryConnection(logging.Nop{})
	taken, err := conn.CreateConsumer(broker.ConsumerConfig{Queue: QueueDelete}, func(context.Context, []byte) any { return nil })
	require.NoError(t, err)

	r := New(conn, panickingService{}, logging.Nop{}, nil, 0)
	require.Error(t, r.Start(context.Background()))
	assert.False(t, r.Started())

	// earlier queues were released and can be bound again
	c, err := conn.CreateConsumer(broker.ConsumerConfig{Queue: QueueAuthenticate}, func(context.Context, []byte) any { return nil })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	require.NoError(t, taken.Close(ctx))
}

func TestBoundary_RecoversPanics(t *testing.T) {
	conn := broker.NewMemoryConnection(logging.Nop{})
	r := New(conn, panickingService{}, logging.Nop{}, nil, 0)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	rpc, err := conn.CreateRPCClient()
	require.NoError(t, err)
	defer rpc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := rpc.Send(ctx, QueueGetAll, nil)
	require.NoError(t, err)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.JSONEq(t, `{"success":false,"data":{"code":500,"name":"InternalError","message":"Internal Server Error."}}`, string(raw))
}

type panickingService struct{ UserService }

func (panickingService) ListAll(context.Context) ([]*users.User, error) {
	panic("storage exploded")
}
