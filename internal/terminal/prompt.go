package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"

	"github.com/nerrad567/newsdesk/internal/auth"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// DefaultMaxAttempts is used when Config.MaxAttempts is zero.
const DefaultMaxAttempts = 3

// Status is how a prompt session ended.
type Status int

// Prompt outcomes.
const (
	StatusCancelled Status = iota
	StatusLoggedIn
)

func (s Status) String() string {
	if s == StatusLoggedIn {
		return "logged_in"
	}
	return "cancelled"
}

// Outcome is the result of Run. Result is set only for StatusLoggedIn.
type Outcome struct {
	Status Status
	Result *auth.LoginResult
}

// Authenticator is satisfied by *auth.Service.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
}

// Config wires a prompt to its input and output.
type Config struct {
	In  io.Reader
	Out io.Writer

	// FD is the file descriptor of In, used for no-echo password input.
	FD int

	MaxAttempts int
}

// Prompt asks for credentials until a login succeeds, the user gives up,
// or the attempt limit is reached.
type Prompt struct {
	auth        Authenticator
	in          *bufio.Reader
	out         io.Writer
	fd          int
	maxAttempts int
}

// NewPrompt creates a prompt that logs in through a.
func NewPrompt(a Authenticator, cfg Config) *Prompt {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Prompt{
		auth:        a,
		in:          bufio.NewReader(cfg.In),
		out:         cfg.Out,
		fd:          cfg.FD,
		maxAttempts: cfg.MaxAttempts,
	}
}

// errInputClosed ends the prompt as cancelled.
var errInputClosed = errors.New("input closed")

// Run prompts until an outcome is reached. After MaxAttempts failed logins
// it returns an error wrapping auth.ErrInvalidCredentials.
func (p *Prompt) Run(ctx context.Context) (Outcome, error) {
	cancelledOutcome := Outcome{Status: StatusCancelled}

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		username, err := p.readLine(ctx, "Username: ")
		if err != nil {
			if isCancel(err) {
				return cancelledOutcome, nil
			}
			return cancelledOutcome, fmt.Errorf("reading username: %w", err)
		}
		if username == "" {
			return cancelledOutcome, nil
		}

		password, err := p.readPassword(ctx)
		if err != nil {
			if isCancel(err) {
				return cancelledOutcome, nil
			}
			return cancelledOutcome, fmt.Errorf("reading password: %w", err)
		}

		result, err := p.auth.Login(ctx, username, password)
		if err == nil {
			return Outcome{Status: StatusLoggedIn, Result: result}, nil
		}
		if errors.Is(err, auth.ErrLoginCancelled) {
			return cancelledOutcome, nil
		}
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			return cancelledOutcome, fmt.Errorf("logging in: %w", err)
		}

		fmt.Fprintln(p.out, auth.PublicMessage(err)) //nolint:errcheck // best-effort terminal output
	}

	return cancelledOutcome, fmt.Errorf("%w: %d failed attempts", auth.ErrInvalidCredentials, p.maxAttempts)
}

func (p *Prompt) readLine(ctx context.Context, label string) (string, error) {
	fmt.Fprint(p.out, label) //nolint:errcheck // best-effort terminal output
	return await(ctx, func() (string, error) {
		line, err := p.in.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if line = strings.TrimSpace(line); line != "" {
					return line, nil
				}
				return "", errInputClosed
			}
			return "", err
		}
		return strings.TrimSpace(line), nil
	})
}

func (p *Prompt) readPassword(ctx context.Context) (string, error) {
	if !isTerminal(p.fd) {
		// Piped input carries the password on its own line, unmasked.
		return p.readLine(ctx, "Password: ")
	}

	fmt.Fprint(p.out, "Password: ") //nolint:errcheck // best-effort terminal output
	pw, err := await(ctx, func() (string, error) {
		b, err := readPassword(p.fd)
		defer clear(b)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
	fmt.Fprintln(p.out) //nolint:errcheck // best-effort terminal output
	return pw, err
}

// await runs read on its own goroutine so that a blocked read does not
// outlive ctx. The abandoned read finishes when input arrives.
func await(ctx context.Context, read func() (string, error)) (string, error) {
	type lineResult struct {
		s   string
		err error
	}
	ch := make(chan lineResult, 1)
	go func() {
		s, err := read()
		ch <- lineResult{s, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.s, r.err
	}
}

func isCancel(err error) bool {
	return errors.Is(err, errInputClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
