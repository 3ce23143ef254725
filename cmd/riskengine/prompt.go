package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digital-twin-risk-engine/internal/auth"
	"github.com/digital-twin-risk-engine/internal/domain"
)

// prompter reads answers from the command's input stream
type prompter struct {
	cmd    *cobra.Command
	reader *bufio.Reader
}

type prompterKey struct{}

// promptFor returns the command's prompter, creating it on first use. All
// prompts of one invocation share a reader so buffered input is not lost.
func promptFor(cmd *cobra.Command) *prompter {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if p, ok := ctx.Value(prompterKey{}).(*prompter); ok {
		return p
	}
	p := &prompter{cmd: cmd, reader: bufio.NewReader(cmd.InOrStdin())}
	cmd.SetContext(context.WithValue(ctx, prompterKey{}, p))
	return p
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.cmd.ErrOrStderr(), question)
	answer, err := p.reader.ReadString('\n')
	if err != nil && answer == "" {
		return "", fmt.Errorf("reading %q: %w", strings.TrimSpace(question), err)
	}
	return strings.TrimSpace(answer), nil
}

func (p *prompter) confirm(question string) bool {
	answer, err := p.ask(question + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// authorize runs the password and one-time code gate when auth is enabled.
func (a *app) authorize(ctx context.Context, cmd *cobra.Command) error {
	if !a.cfg.Auth.Enabled {
		return nil
	}

	authenticator, err := auth.NewService(a.cfg.Auth, auth.NewFileCodeSender(a.cfg.Auth.OutboxPath), a.logger)
	if err != nil {
		return err
	}

	p := promptFor(cmd)
	username, err := p.ask("Username: ")
	if err != nil {
		return err
	}
	password, err := p.ask("Password: ")
	if err != nil {
		return err
	}

	challenge, err := authenticator.Begin(ctx, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "A one-time code was delivered (valid until %s).\n",
		challenge.ExpiresAt.Local().Format("15:04:05"))

	for {
		code, err := p.ask("Code: ")
		if err != nil {
			return err
		}
		session, err := authenticator.Verify(ctx, challenge.ID, code)
		if err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Welcome, %s.\n", session.Username)
			return nil
		}
		// wrong codes may be retried until the challenge is consumed
		var authErr *domain.AuthError
		if !errors.As(err, &authErr) || authErr.Reason != auth.ReasonInvalidCode {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Invalid code, try again.")
	}
}
