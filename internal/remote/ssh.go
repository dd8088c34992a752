package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultSSHPort is used when the target has no port.
const DefaultSSHPort = 22

// SSHBackend runs commands on Linux boards over SSH.
type SSHBackend struct {
	// HostKeyCallback verifies the board's host key. Boards are reached on
	// the local network by address, so the default accepts any key.
	HostKeyCallback ssh.HostKeyCallback
}

// NewSSHBackend creates an SSH backend.
func NewSSHBackend() *SSHBackend {
	return &SSHBackend{HostKeyCallback: ssh.InsecureIgnoreHostKey()}
}

type sshSession struct {
	target Target
	client *ssh.Client
}

func (s *sshSession) Target() Target { return s.target }

func (b *SSHBackend) Name() string { return "ssh" }

// Connect dials the target and authenticates with its password.
func (b *SSHBackend) Connect(ctx context.Context, t Target, timeout time.Duration) (Session, error) {
	port := t.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	addr := net.JoinHostPort(t.Host, strconv.Itoa(port))
	password := t.Password
	cfg := &ssh.ClientConfig{
		User: t.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: b.HostKeyCallback,
		Timeout:         timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, addr, err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Closing the socket is the only way to interrupt the handshake.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if !stop() && err == nil {
		c.Close()
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: handshake with %s: %w", ErrTransport, addr, ctxErr)
		}
		if isAuthError(err) {
			return nil, fmt.Errorf("%w: %s@%s: %v", ErrAuthenticationFailed, t.User, addr, err)
		}
		return nil, fmt.Errorf("%w: handshake with %s: %v", ErrTransport, addr, err)
	}
	conn.SetDeadline(time.Time{})

	return &sshSession{target: t, client: ssh.NewClient(c, chans, reqs)}, nil
}

func isAuthError(err error) bool {
	var se *ssh.ServerAuthError
	if errors.As(err, &se) {
		return true
	}
	return strings.Contains(err.Error(), "unable to authenticate")
}

func (b *SSHBackend) session(s Session) (*sshSession, error) {
	ss, ok := s.(*sshSession)
	if !ok || ss.client == nil {
		return nil, fmt.Errorf("%w: not an ssh session", ErrTransport)
	}
	return ss, nil
}

// Upload streams local into remote through cat.
func (b *SSHBackend) Upload(ctx context.Context, s Session, local, remote string) error {
	ss, err := b.session(s)
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()

	sess, err := ss.client.NewSession()
	if err != nil {
		return fmt.Errorf("%w: new session: %v", ErrTransport, err)
	}
	defer sess.Close()
	sess.Stdin = f

	done := make(chan error, 1)
	go func() { done <- sess.Run("cat > " + shellQuote(remote)) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: upload to %s: %v", ErrTransport, remote, err)
		}
		return nil
	case <-ctx.Done():
		sess.Close()
		return ctx.Err()
	}
}

// Exec starts command. With pty the remote side line-buffers output and
// stderr is merged into stdout.
func (b *SSHBackend) Exec(ctx context.Context, s Session, command string, pty bool) (Channel, error) {
	ss, err := b.session(s)
	if err != nil {
		return nil, err
	}
	sess, err := ss.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: new session: %v", ErrTransport, err)
	}
	if pty {
		modes := ssh.TerminalModes{ssh.ECHO: 0, ssh.TTY_OP_ISPEED: 38400, ssh.TTY_OP_OSPEED: 38400}
		if err := sess.RequestPty("xterm", 40, 120, modes); err != nil {
			sess.Close()
			return nil, fmt.Errorf("%w: request pty: %v", ErrTransport, err)
		}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: stdout: %v", ErrTransport, err)
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: stderr: %v", ErrTransport, err)
	}
	if err := sess.Start(command); err != nil {
		sess.Close()
		return nil, fmt.Errorf("%w: start %q: %v", ErrTransport, command, err)
	}
	return newStreamChannel(stdout, stderr, sess.Wait, sshStatus, sess.Close), nil
}

func sshStatus(err error) int {
	if err == nil {
		return 0
	}
	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		return ee.ExitStatus()
	}
	return -1
}

// Close closes the connection and every channel on it.
func (b *SSHBackend) Close(s Session) error {
	ss, err := b.session(s)
	if err != nil {
		return err
	}
	return ss.client.Close()
}
