package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultMPRemote is the mpremote executable name.
const DefaultMPRemote = "mpremote"

// MPRemoteBackend drives a MicroPython board attached over USB with the
// mpremote tool. Target.Host names the serial device; empty means auto.
// Commands are mpremote subcommands such as `fs ls` or `exec "import main"`.
type MPRemoteBackend struct {
	Binary string
	// Device, when set, is used instead of Target.Host.
	Device string
}

// NewMPRemoteBackend creates a backend using binary, or mpremote when empty.
func NewMPRemoteBackend(binary string) *MPRemoteBackend {
	if binary == "" {
		binary = DefaultMPRemote
	}
	return &MPRemoteBackend{Binary: binary}
}

type mpSession struct {
	target Target
	path   string
}

func (s *mpSession) Target() Target { return s.target }

func (b *MPRemoteBackend) Name() string { return "mpremote" }

// Connect resolves the tool; the serial port is opened per command.
func (b *MPRemoteBackend) Connect(_ context.Context, t Target, _ time.Duration) (Session, error) {
	path, err := exec.LookPath(b.Binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrTransport, b.Binary, err)
	}
	return &mpSession{target: t, path: path}, nil
}

func (b *MPRemoteBackend) session(s Session) (*mpSession, error) {
	ms, ok := s.(*mpSession)
	if !ok {
		return nil, fmt.Errorf("%w: not an mpremote session", ErrTransport)
	}
	return ms, nil
}

func (b *MPRemoteBackend) command(ctx context.Context, ms *mpSession, args ...string) *exec.Cmd {
	device := ms.target.Host
	if b.Device != "" {
		device = b.Device
	}
	if device == "" {
		device = "auto"
	}
	return exec.CommandContext(ctx, ms.path, append([]string{"connect", device}, args...)...)
}

// Upload copies local to the board; remote is a device path like ":main.py".
func (b *MPRemoteBackend) Upload(ctx context.Context, s Session, local, remote string) error {
	ms, err := b.session(s)
	if err != nil {
		return err
	}
	out, err := b.command(ctx, ms, "fs", "cp", local, remote).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: copy to %s: %v: %s", ErrTransport, remote, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Exec runs an mpremote subcommand line. The pty flag is ignored: the
// board's REPL output is unbuffered.
func (b *MPRemoteBackend) Exec(ctx context.Context, s Session, command string, _ bool) (Channel, error) {
	ms, err := b.session(s)
	if err != nil {
		return nil, err
	}
	args, err := splitArgs(command)
	if err != nil {
		return nil, err
	}
	cmd := b.command(context.WithoutCancel(ctx), ms, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout: %v", ErrTransport, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr: %v", ErrTransport, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrTransport, b.Binary, err)
	}
	kill := func() error {
		if cmd.Process == nil {
			return nil
		}
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		return nil
	}
	return newStreamChannel(stdout, stderr, cmd.Wait, processStatus, kill), nil
}

func processStatus(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Close is a no-op: every command opens and releases the port itself.
func (b *MPRemoteBackend) Close(s Session) error {
	_, err := b.session(s)
	return err
}

// splitArgs splits a command line on spaces, honouring single and double quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		open  bool
	)
	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			open = true
		case r == ' ' || r == '\t':
			if open || cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
				open = false
			}
		default:
			cur.WriteRune(r)
			open = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if open || cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args, nil
}
