package remote

import (
	"bytes"
	"io"
	"sync"
)

// streamChannel buffers a command's output in the background so the
// Channel methods never block.
type streamChannel struct {
	mu     sync.Mutex
	out    bytes.Buffer
	errOut bytes.Buffer
	exited bool
	status int
	closer func() error
	once   sync.Once
}

// newStreamChannel starts copying stdout and stderr (which may be nil).
// wait blocks until the command exits; statusOf maps its error to an exit code.
func newStreamChannel(stdout, stderr io.Reader, wait func() error, statusOf func(error) int, closer func() error) *streamChannel {
	c := &streamChannel{closer: closer}

	var copies sync.WaitGroup
	copies.Add(1)
	go func() {
		defer copies.Done()
		c.pump(stdout, &c.out)
	}()
	if stderr != nil {
		copies.Add(1)
		go func() {
			defer copies.Done()
			c.pump(stderr, &c.errOut)
		}()
	}

	go func() {
		// Output must be fully buffered before the exit becomes visible.
		copies.Wait()
		err := wait()
		c.mu.Lock()
		c.status = statusOf(err)
		c.exited = true
		c.mu.Unlock()
	}()
	return c
}

func (c *streamChannel) pump(r io.Reader, dst *bytes.Buffer) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.mu.Lock()
			dst.Write(buf[:n])
			c.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (c *streamChannel) RecvReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Len() > 0
}

func (c *streamChannel) Recv(max int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out.Len() == 0 {
		if c.exited {
			return nil, io.EOF
		}
		return nil, nil
	}
	return c.out.Next(max), nil
}

func (c *streamChannel) ExitReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

func (c *streamChannel) ExitStatus() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *streamChannel) Stderr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errOut.String()
}

func (c *streamChannel) Close() error {
	var err error
	c.once.Do(func() {
		if c.closer != nil {
			err = c.closer()
		}
	})
	return err
}
