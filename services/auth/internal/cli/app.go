// Package cli implements authctl, a terminal client for the auth service.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/utafrali/TrainingPlatform/pkg/authclient"
)

// ErrUsage is returned for an unknown or missing command.
var ErrUsage = errors.New("usage: authctl signup|login|me|logout")

// App runs one authctl command against a session.
type App struct {
	session *authclient.SessionManager
	in      *bufio.Reader
	out     io.Writer
}

// NewApp creates an App reading prompts from in and writing to out.
func NewApp(session *authclient.SessionManager, in io.Reader, out io.Writer) *App {
	return &App{session: session, in: bufio.NewReader(in), out: out}
}

// Run dispatches args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "signup":
		return a.signup(ctx)
	case "login":
		return a.login(ctx)
	case "me":
		return a.me(ctx)
	case "logout":
		return a.logout(ctx)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], ErrUsage)
	}
}

func (a *App) signup(ctx context.Context) error {
	email, err := prompt(a.in, a.out, "Email")
	if err != nil {
		return err
	}
	name, err := prompt(a.in, a.out, "Name")
	if err != nil {
		return err
	}
	role, err := prompt(a.in, a.out, "Role (learner, trainer, operations) [learner]")
	if err != nil {
		return err
	}
	secret, err := promptSecret(a.in, a.out)
	if err != nil {
		return err
	}

	err = a.session.Signup(ctx, authclient.SignupData{
		Email:  email,
		Secret: secret,
		Name:   name,
		Role:   strings.ToLower(role),
	})
	if err != nil {
		return err
	}
	return a.greet()
}

func (a *App) login(ctx context.Context) error {
	email, err := prompt(a.in, a.out, "Email")
	if err != nil {
		return err
	}
	secret, err := promptSecret(a.in, a.out)
	if err != nil {
		return err
	}

	if err := a.session.Login(ctx, authclient.Credentials{Email: email, Secret: secret}); err != nil {
		return err
	}
	return a.greet()
}

func (a *App) me(ctx context.Context) error {
	a.session.Init(ctx)
	user := a.session.State().User
	if user == nil {
		_, err := fmt.Fprintln(a.out, "Not logged in.")
		return err
	}
	_, err := fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nid:   %s\n", user.Name, user.Email, user.Role, user.ID)
	return err
}

func (a *App) logout(ctx context.Context) error {
	a.session.Logout(ctx)
	_, err := fmt.Fprintln(a.out, "Logged out.")
	return err
}

func (a *App) greet() error {
	user := a.session.State().User
	if user == nil {
		return errors.New("session has no user")
	}
	_, err := fmt.Fprintf(a.out, "Logged in as %s (%s).\n", user.Email, user.Role)
	return err
}
