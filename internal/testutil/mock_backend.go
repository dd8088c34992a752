// mock_backend.go - Scripted remote backend for testing
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/remote"
)

// Script describes what a launched program prints and how it ends.
type Script struct {
	Chunks     []string
	Interval   time.Duration // delay before each chunk
	ExitStatus int
	Stderr     string
	Hang       bool // keep running until the channel is closed
}

// MockBackend implements remote.ExecBackend with an in-memory process table.
// Short commands (home lookup, pgrep, kill, pin reset) are answered
// directly; python3 and mpremote exec commands start Program.
type MockBackend struct {
	mu sync.Mutex

	Home         string
	ConnectErr   error
	ConnectDelay time.Duration
	UploadErr    error
	Program      Script

	commands []string
	uploads  map[string][]byte
	running  map[int]bool
	nextPID  int
	connects int
	closes   int
}

// NewMockBackend creates a backend whose home directory is /home/pi.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Home:    "/home/pi",
		uploads: make(map[string][]byte),
		running: make(map[int]bool),
		nextPID: 1000,
	}
}

type mockSession struct {
	target remote.Target
}

func (s *mockSession) Target() remote.Target { return s.target }

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) Connect(ctx context.Context, t remote.Target, _ time.Duration) (remote.Session, error) {
	if m.ConnectDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.ConnectDelay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	return &mockSession{target: t}, nil
}

func (m *MockBackend) Upload(_ context.Context, _ remote.Session, local, remotePath string) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[remotePath] = data
	return nil
}

func (m *MockBackend) Exec(_ context.Context, _ remote.Session, command string, _ bool) (remote.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, command)

	switch {
	case command == "echo $HOME":
		return finished(m.Home+"\n", 0), nil
	case strings.HasPrefix(command, "pgrep "):
		var pids []string
		for _, pid := range m.pidsLocked() {
			pids = append(pids, strconv.Itoa(pid))
		}
		status := 0
		if len(pids) == 0 {
			status = 1
		}
		return finished(strings.Join(pids, "\n"), status), nil
	case strings.HasPrefix(command, "kill "):
		for _, f := range strings.Fields(command)[2:] {
			if pid, err := strconv.Atoi(f); err == nil {
				delete(m.running, pid)
			}
		}
		return finished("", 0), nil
	case command == "soft-reset":
		m.running = make(map[int]bool)
		return finished("", 0), nil
	case strings.HasPrefix(command, "python3 -u "), strings.HasPrefix(command, "exec "):
		pid := m.nextPID
		m.nextPID++
		m.running[pid] = true
		ch := &MockChannel{script: m.Program, start: time.Now()}
		ch.onExit = func() {
			m.mu.Lock()
			delete(m.running, pid)
			m.mu.Unlock()
		}
		return ch, nil
	}
	return finished("", 0), nil
}

func (m *MockBackend) pidsLocked() []int {
	pids := make([]int, 0, len(m.running))
	for pid := range m.running {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids
}

func (m *MockBackend) Close(remote.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

// Commands returns every command executed so far.
func (m *MockBackend) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// CommandsWith returns the executed commands starting with prefix.
func (m *MockBackend) CommandsWith(prefix string) []string {
	var out []string
	for _, c := range m.Commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Uploaded returns the content uploaded to a remote path.
func (m *MockBackend) Uploaded(remotePath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.uploads[remotePath]
	return data, ok
}

// Running returns the pids of programs that have not exited.
func (m *MockBackend) Running() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pidsLocked()
}

// Sessions returns how many sessions were opened and closed.
func (m *MockBackend) Sessions() (opened, closed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.closes
}

// StartOrphan registers a program left running by an earlier process.
func (m *MockBackend) StartOrphan() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid := m.nextPID
	m.nextPID++
	m.running[pid] = true
	return pid
}

func (m *MockBackend) String() string {
	return fmt.Sprintf("MockBackend(%d commands, %d running)", len(m.Commands()), len(m.Running()))
}

func finished(out string, status int) *MockChannel {
	return &MockChannel{script: Script{Chunks: []string{out}, ExitStatus: status}, start: time.Now()}
}

// MockChannel releases the chunks of a Script as time passes.
type MockChannel struct {
	mu       sync.Mutex
	script   Script
	start    time.Time
	next     int
	buf      bytes.Buffer
	closed   bool
	exited   bool
	onExit   func()
	exitOnce sync.Once
}

func (c *MockChannel) release() {
	elapsed := time.Since(c.start)
	for c.next < len(c.script.Chunks) && elapsed >= time.Duration(c.next+1)*c.script.Interval {
		c.buf.WriteString(c.script.Chunks[c.next])
		c.next++
	}
	if !c.exited && !c.script.Hang && c.next == len(c.script.Chunks) {
		c.exited = true
		c.exit()
	}
}

func (c *MockChannel) exit() {
	c.exitOnce.Do(func() {
		if c.onExit != nil {
			c.onExit()
		}
	})
}

func (c *MockChannel) RecvReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return c.buf.Len() > 0
}

func (c *MockChannel) Recv(max int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return append([]byte(nil), c.buf.Next(max)...), nil
}

func (c *MockChannel) ExitReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release()
	return c.exited || c.closed
}

func (c *MockChannel) ExitStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exited {
		return -1
	}
	return c.script.ExitStatus
}

func (c *MockChannel) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.exited {
		return ""
	}
	return c.script.Stderr
}

// Close kills the program; closing the PTY ends the remote process.
func (c *MockChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.exit()
	return nil
}
