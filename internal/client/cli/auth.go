package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophsky/internal/cryptox"
	"github.com/dmitrijs2005/gophsky/internal/session"
)

// Login prompts for a handle (or email) and an app password and opens a
// session. The password is wiped before returning. The error of the
// underlying Manager call is returned after it has been reported.
func (a *App) Login(ctx context.Context) error {
	identifier, err := getSimpleText(a.reader, "Enter handle or email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "App password: ")
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)

	s, err := a.sessions.Login(ctx, identifier, string(password))
	if err != nil {
		a.log.Info(ctx, "login failed", "identifier", identifier, "error", err)
		fmt.Fprintln(a.out, describeError(err))
		return err
	}

	a.cursor = ""
	fmt.Fprintf(a.out, "Logged in as @%s (%s)\n", s.Handle, s.DID)
	return nil
}

// Whoami prints the account of the current session.
func (a *App) Whoami(ctx context.Context) error {
	s, ok := a.sessions.Current()
	if !ok {
		fmt.Fprintln(a.out, describeError(session.ErrNoActiveSession))
		return session.ErrNoActiveSession
	}

	fmt.Fprintf(a.out, "@%s\n  did:    %s\n", s.Handle, s.DID)
	if s.Email != nil {
		fmt.Fprintf(a.out, "  email:  %s\n", *s.Email)
	}
	if s.Status != "" {
		fmt.Fprintf(a.out, "  status: %s\n", s.Status)
	}
	return nil
}

// Logout ends the session locally and, best effort, on the server.
func (a *App) Logout(ctx context.Context) error {
	a.sessions.Logout(ctx)
	a.cursor = ""
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}
