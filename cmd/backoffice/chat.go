package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"backoffice/pkg/config"
	"backoffice/pkg/stage"
)

func newChatCmd(opts *options) *cobra.Command {
	var (
		sessionID string
		userID    string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := startApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			a.serveMetrics()

			if userID == "" {
				userID = a.cfg.DefaultUser
			}
			if sessionID == "" {
				sess, err := a.runner.NewSession(ctx, userID)
				if err != nil {
					return err
				}
				sessionID = sess.ID
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session %s. Type 'exit' to quit.\n", sessionID)

			in := bufio.NewReader(cmd.InOrStdin())
			for ctx.Err() == nil {
				line, err := readTurnInput(cmd, in, a.awaitingCredential(ctx, sessionID, userID))
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}

				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}

				if err := printEvents(out, cmd.ErrOrStderr(), a.runner.Run(ctx, sessionID, userID, line), verbose); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume this session id (a new session is created when empty)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id (defaults to the configured default user)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show tool calls")
	return cmd
}

func newAskCmd(opts *options) *cobra.Command {
	var (
		sessionID string
		userID    string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Run a single turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := startApp(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if userID == "" {
				userID = a.cfg.DefaultUser
			}
			if sessionID == "" {
				sess, err := a.runner.NewSession(ctx, userID)
				if err != nil {
					return err
				}
				sessionID = sess.ID
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)

			return printEvents(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.runner.Run(ctx, sessionID, userID, strings.Join(args, " ")), verbose)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to continue (a new session is created when empty)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id (defaults to the configured default user)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show tool calls")
	return cmd
}

// startApp unlocks secrets and wires the pipeline from the loaded config.
func startApp(ctx context.Context, cmd *cobra.Command, opts *options) (*app, error) {
	if err := unlockSecrets(cmd, opts); err != nil {
		return nil, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, opts)
}

// awaitingCredential reports whether the next message will be taken as the credential.
func (a *app) awaitingCredential(ctx context.Context, sessionID, userID string) bool {
	sess, err := a.runner.Session(ctx, sessionID, userID)
	if err != nil {
		return false
	}
	return sess.State.AuthInProgress()
}

// readTurnInput reads the next message. A credential is read without echo when stdin is a terminal.
func readTurnInput(cmd *cobra.Command, in *bufio.Reader, secret bool) (string, error) {
	out := cmd.OutOrStdout()
	if secret {
		fmt.Fprint(out, "🔒 ")
		fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int on every supported platform
		if cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
			value, err := term.ReadPassword(fd)
			fmt.Fprintln(out)
			if err != nil {
				return "", fmt.Errorf("failed to read credential: %w", err)
			}
			return string(value), nil
		}
	} else {
		fmt.Fprint(out, "> ")
	}

	line, err := in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err //nolint:wrapcheck // io.EOF is checked by the caller
	}
	return line, nil
}

// printEvents writes the visible events of one turn. Tool calls go to errOut when verbose.
func printEvents(out, errOut io.Writer, events iter.Seq2[*stage.Event, error], verbose bool) error {
	for ev, err := range events {
		if err != nil {
			return err
		}
		if verbose {
			for _, call := range ev.ToolCalls {
				status := "ok"
				switch {
				case call.Blocked:
					status = "blocked"
				case call.IsError:
					status = "error"
				}
				fmt.Fprintf(errOut, "  ↳ %s [%s] %v\n", call.Name, status, call.Args)
			}
			if ev.Err != "" {
				fmt.Fprintf(errOut, "  ! %s\n", ev.Err)
			}
		}
		if ev.Visible() {
			fmt.Fprintln(out, ev.Text)
		}
	}
	return nil
}

// readLine reads up to a newline one byte at a time so no input is buffered away from later readers.
func readLine(r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return sb.String(), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return sb.String(), err //nolint:wrapcheck // io.EOF is checked by callers
		}
	}
}
