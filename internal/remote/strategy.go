package remote

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

const (
	// KillGrace is how long old interpreters get to exit after SIGTERM.
	KillGrace = 3 * time.Second
	killPoll  = 100 * time.Millisecond
)

// Strategy drives the upload, cleanup and launch steps for one kind of target.
type Strategy interface {
	Name() string
	// Upload copies the artifact and returns its remote path.
	Upload(ctx context.Context, b ExecBackend, s Session, local string) (string, error)
	// KillOld stops interpreters left over from earlier runs.
	KillOld(ctx context.Context, b ExecBackend, s Session, remote string) error
	// ResetPins releases kernel handles on the given pins.
	ResetPins(ctx context.Context, b ExecBackend, s Session, pins []int) error
	Launch(ctx context.Context, b ExecBackend, s Session, remote string) (Channel, error)
}

// StrategyFor picks the strategy for a target model index.
func StrategyFor(targetIndex int) Strategy {
	if models.IsMicrocontroller(targetIndex) {
		return &PicoStrategy{}
	}
	return &LinuxStrategy{}
}

// LinuxStrategy runs the artifact with python3 on a Linux board.
type LinuxStrategy struct{}

func (l *LinuxStrategy) Name() string { return "linux" }

func (l *LinuxStrategy) Upload(ctx context.Context, b ExecBackend, s Session, local string) (string, error) {
	out, status, err := Run(ctx, b, s, "echo $HOME")
	if err != nil {
		return "", err
	}
	home := strings.TrimSpace(out)
	if status != 0 || home == "" {
		return "", fmt.Errorf("%w: cannot resolve remote home directory", ErrTransport)
	}
	remote := path.Join(home, path.Base(local))
	if err := b.Upload(ctx, s, local, remote); err != nil {
		return "", err
	}
	return remote, nil
}

// killPattern matches the interpreter command line without matching the
// shell that runs pgrep: the first letter sits in a character class.
func killPattern(remote string) string {
	base := path.Base(remote)
	if base == "" || base == "." || base == "/" {
		base = "File.py"
	}
	quoted := regexp.QuoteMeta(base)
	if r := quoted[0]; r != '\\' {
		quoted = "[" + string(r) + "]" + quoted[1:]
	}
	return "python3 -u .*" + quoted
}

func (l *LinuxStrategy) pids(ctx context.Context, b ExecBackend, s Session, pattern string) ([]string, error) {
	out, _, err := Run(ctx, b, s, "pgrep -f "+shellQuote(pattern))
	if err != nil {
		return nil, err
	}
	var pids []string
	for _, f := range strings.Fields(out) {
		if _, err := strconv.Atoi(f); err == nil {
			pids = append(pids, f)
		}
	}
	return pids, nil
}

func (l *LinuxStrategy) KillOld(ctx context.Context, b ExecBackend, s Session, remote string) error {
	pattern := killPattern(remote)
	pids, err := l.pids(ctx, b, s, pattern)
	if err != nil || len(pids) == 0 {
		return err
	}
	if _, _, err := Run(ctx, b, s, "kill -TERM "+strings.Join(pids, " ")); err != nil {
		return err
	}

	deadline := time.Now().Add(KillGrace)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(killPoll):
		}
		if pids, err = l.pids(ctx, b, s, pattern); err != nil || len(pids) == 0 {
			return err
		}
	}
	_, _, err = Run(ctx, b, s, "kill -KILL "+strings.Join(pids, " "))
	return err
}

func (l *LinuxStrategy) ResetPins(ctx context.Context, b ExecBackend, s Session, pins []int) error {
	if len(pins) == 0 {
		return nil
	}
	list := make([]string, len(pins))
	for i, p := range pins {
		list[i] = strconv.Itoa(p)
	}
	cmd := fmt.Sprintf("for p in %s; do [ -e /sys/class/gpio/gpio$p ] && echo $p > /sys/class/gpio/unexport; done; true",
		strings.Join(list, " "))
	_, _, err := Run(ctx, b, s, cmd)
	return err
}

func (l *LinuxStrategy) Launch(ctx context.Context, b ExecBackend, s Session, remote string) (Channel, error) {
	return b.Exec(ctx, s, "python3 -u "+shellQuote(remote), true)
}

// PicoStrategy installs the artifact as main.py on a MicroPython board.
type PicoStrategy struct{}

// PicoEntryPoint is the file MicroPython runs at boot.
const PicoEntryPoint = "main.py"

func (p *PicoStrategy) Name() string { return "pico" }

func (p *PicoStrategy) Upload(ctx context.Context, b ExecBackend, s Session, local string) (string, error) {
	if err := b.Upload(ctx, s, local, ":"+PicoEntryPoint); err != nil {
		return "", err
	}
	return PicoEntryPoint, nil
}

// KillOld soft-resets the board, which stops the running program.
func (p *PicoStrategy) KillOld(ctx context.Context, b ExecBackend, s Session, _ string) error {
	_, status, err := Run(ctx, b, s, "soft-reset")
	if err != nil {
		return err
	}
	if status != 0 {
		return fmt.Errorf("%w: soft-reset exited with %d", ErrTransport, status)
	}
	return nil
}

// ResetPins is a no-op: the soft reset already released every pin.
func (p *PicoStrategy) ResetPins(context.Context, ExecBackend, Session, []int) error {
	return nil
}

func (p *PicoStrategy) Launch(ctx context.Context, b ExecBackend, s Session, remote string) (Channel, error) {
	module := strings.TrimSuffix(remote, ".py")
	return b.Exec(ctx, s, fmt.Sprintf("exec 'import %s'", module), false)
}
