// Package cli implements userctl, an operator tool that sends one request
// to a users service queue and prints the reply.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/broker"
	"github.com/dmitrijs2005/usersvc/internal/client/config"
	"github.com/dmitrijs2005/usersvc/internal/dto"
	"github.com/dmitrijs2005/usersvc/internal/logging"
)

var (
	ErrUsage         = errors.New("usage error")
	ErrRequestFailed = errors.New("request failed")
)

const usage = `Usage: userctl [-c file] [-b broker-url] [-t seconds] <command> [args]

Commands:
  auth <email>                           authenticate (prompts for password)
  list                                   list all users
  get <id>                               show one user
  summaries <id>...                      show id/displayName pairs
  create                                 create a user (prompts)
  update <id> [-email E] [-name N] [-password]
  delete <id>                            delete a user and its dependents
`

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

type App struct {
	config  *config.Config
	conn    broker.Connection
	reader  *bufio.Reader
	out     io.Writer
	timeout time.Duration
}

// NewApp connects to the broker named in c.
func NewApp(c *config.Config) (*App, error) {
	conn, err := broker.NewRedisConnection(c.BrokerURL, logging.Nop{})
	if err != nil {
		return nil, err
	}
	return newApp(c, conn, os.Stdin, os.Stdout), nil
}

func newApp(c *config.Config, conn broker.Connection, in io.Reader, out io.Writer) *App {
	return &App{config: c, conn: conn, reader: bufio.NewReader(in), out: out, timeout: c.Timeout}
}

// Run executes one command and closes the connection.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.conn.Close()

	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	var (
		queue string
		body  any
		err   error
	)

	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	case "auth":
		queue, body, err = a.authRequest(rest)
	case "list":
		queue, body = "get-all-users", struct{}{}
	case "get":
		queue, body, err = idRequest("get-user-by-id", rest)
	case "summaries":
		queue, body, err = summariesRequest(rest)
	case "create":
		queue, body, err = a.createRequest()
	case "update":
		queue, body, err = a.updateRequest(rest)
	case "delete":
		queue, body, err = idRequest("delete-user", rest)
	default:
		fmt.Fprintf(a.out, "Unknown command: %s\n\n%s", cmd, usage)
		return ErrUsage
	}
	if err != nil {
		return err
	}

	return a.send(ctx, queue, body)
}

func (a *App) send(ctx context.Context, queue string, body any) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rpc, err := a.conn.CreateRPCClient()
	if err != nil {
		return err
	}
	defer rpc.Close()

	raw, err := rpc.Send(ctx, queue, body)
	if err != nil {
		return fmt.Errorf("%s: %w", queue, err)
	}

	resp, err := dto.DecodeResponse(raw)
	if err != nil {
		return err
	}

	if !resp.Success {
		e, err := resp.ErrorData()
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Error %d %s: %s\n", e.Code, e.Name, e.Message)
		return ErrRequestFailed
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(a.out, pretty.String())
	return nil
}
