package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/usersvc/internal/common"
)

func idRequest(queue string, args []string) (string, any, error) {
	if len(args) != 1 {
		return "", nil, fmt.Errorf("%w: expected exactly one user id", ErrUsage)
	}
	return queue, map[string]string{"id": args[0]}, nil
}

func summariesRequest(args []string) (string, any, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: expected at least one user id", ErrUsage)
	}
	return "get-user-summaries-by-ids", map[string][]string{"ids": args}, nil
}

func (a *App) promptPassword() (string, error) {
	pw, err := getPassword(a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

func (a *App) authRequest(args []string) (string, any, error) {
	var email string
	switch len(args) {
	case 0:
		var err error
		if email, err = getSimpleText(a.reader, "Enter email", a.out); err != nil {
			return "", nil, err
		}
	case 1:
		email = args[0]
	default:
		return "", nil, fmt.Errorf("%w: auth takes at most one email", ErrUsage)
	}

	password, err := a.promptPassword()
	if err != nil {
		return "", nil, err
	}
	return "authenticate-user", map[string]string{"email": email, "password": password}, nil
}

func (a *App) createRequest() (string, any, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	name, err := getSimpleText(a.reader, "Enter display name", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := a.promptPassword()
	if err != nil {
		return "", nil, err
	}
	return "create-user", map[string]string{"email": email, "password": password, "displayName": name}, nil
}

func (a *App) updateRequest(args []string) (string, any, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%w: expected a user id", ErrUsage)
	}
	id := args[0]

	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "new email")
	name := fs.String("name", "", "new display name")
	newPassword := fs.Bool("password", false, "prompt for a new password")
	if err := fs.Parse(args[1:]); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	body := map[string]string{"id": id}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "email":
			body["email"] = *email
		case "name":
			body["displayName"] = *name
		}
	})

	if *newPassword {
		pw, err := a.promptPassword()
		if err != nil {
			return "", nil, err
		}
		body["password"] = pw
	}

	if len(body) == 1 {
		return "", nil, fmt.Errorf("%w: nothing to update", ErrUsage)
	}
	return "update-user", body, nil
}
