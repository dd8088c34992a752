// Package remote runs compiled programs on a board. An ExecBackend provides
// the transport; a Strategy drives it for one kind of target.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTransport wraps every connect, upload and exec failure.
	ErrTransport = errors.New("transport_error")
	// ErrAuthenticationFailed is a transport error caused by rejected credentials.
	ErrAuthenticationFailed = fmt.Errorf("%w: authentication_failed", ErrTransport)
)

// PollInterval is how long command helpers sleep between channel polls.
const PollInterval = 20 * time.Millisecond

// Target describes where to connect.
type Target struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Session is an open connection to a target.
type Session interface {
	Target() Target
}

// Channel is a running remote command. Reads never block: callers poll
// RecvReady and ExitReady.
type Channel interface {
	RecvReady() bool
	Recv(max int) ([]byte, error)
	// ExitReady reports that the command exited and all output was buffered.
	ExitReady() bool
	ExitStatus() int
	Stderr() string
	// Close aborts the command and unblocks any pending remote I/O.
	Close() error
}

// ExecBackend is the transport capability the execution worker needs.
type ExecBackend interface {
	Name() string
	Connect(ctx context.Context, t Target, timeout time.Duration) (Session, error)
	Upload(ctx context.Context, s Session, local, remote string) error
	Exec(ctx context.Context, s Session, command string, pty bool) (Channel, error)
	Close(s Session) error
}

// Run executes a short command to completion and returns its output and
// exit status.
func Run(ctx context.Context, b ExecBackend, s Session, command string) (string, int, error) {
	ch, err := b.Exec(ctx, s, command, false)
	if err != nil {
		return "", -1, err
	}
	defer ch.Close()

	var out bytes.Buffer
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		for ch.RecvReady() {
			data, err := ch.Recv(4096)
			out.Write(data)
			if err != nil {
				break
			}
		}
		if ch.ExitReady() {
			for ch.RecvReady() {
				data, _ := ch.Recv(4096)
				out.Write(data)
			}
			return out.String(), ch.ExitStatus(), nil
		}
		select {
		case <-ctx.Done():
			return out.String(), -1, ctx.Err()
		case <-ticker.C:
		}
	}
}

// shellQuote wraps s in single quotes for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
