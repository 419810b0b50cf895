// Package console is a line-oriented TCP console that mirrors the daemon log.
//
// Server is an io.Writer: the logger writes to it and every line is copied
// to connected clients and kept in a short history that new clients receive
// first. Clients can also type a few commands.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	clientQueue = 256
	prompt      = "growlight> "
	helpText    = "commands: status, help, quit\r\n"
)

// StatusFunc renders the current status for the status command.
type StatusFunc func() string

type client struct {
	conn    net.Conn
	out     chan []byte
	dropped int
	once    sync.Once
}

// finish stops the queue. The writer flushes what is left and then closes
// the connection. Callers must have removed c from the client set.
func (c *client) finish() {
	c.once.Do(func() { close(c.out) })
}

// Server fans log output out to TCP clients.
type Server struct {
	status StatusFunc

	mu      sync.Mutex
	history [][]byte
	size    int
	head    int
	count   int
	clients map[*client]struct{}
	ln      net.Listener
	closed  bool
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// New returns a console keeping the last history lines.
func New(history int, status StatusFunc) *Server {
	if history < 1 {
		history = 1
	}
	return &Server{
		status:  status,
		history: make([][]byte, history),
		size:    history,
		clients: make(map[*client]struct{}),
		logger:  zerolog.Nop(),
	}
}

// SetStatus replaces the status command's renderer.
func (s *Server) SetStatus(status StatusFunc) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// SetLogger sets the logger for connection events. The logger usually
// writes back into this Server.
func (s *Server) SetLogger(logger zerolog.Logger) {
	s.mu.Lock()
	s.logger = logger.With().Str("component", "console").Logger()
	s.mu.Unlock()
}

// Write records p in the history and queues it for every client. It never
// blocks: a client that cannot keep up loses lines.
func (s *Server) Write(p []byte) (int, error) {
	line := toCRLF(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = line
	s.head = (s.head + 1) % s.size
	if s.count < s.size {
		s.count++
	}

	for c := range s.clients {
		select {
		case c.out <- line:
		default:
			c.dropped++
		}
	}
	return len(p), nil
}

// Listen opens a TCP listener on addr and serves it in the background.
func (s *Server) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen console %s: %w", addr, err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Serve(ln)
	}()
	return ln.Addr(), nil
}

// Serve accepts clients on ln until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return net.ErrClosed
	}
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept console client: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting, disconnects all clients and waits for them.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
		delete(s.clients, c)
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for _, c := range clients {
		c.finish()
		c.conn.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) handle(conn net.Conn) {
	c := &client{conn: conn, out: make(chan []byte, clientQueue+s.size)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	start := (s.head - s.count + s.size) % s.size
	for i := 0; i < s.count; i++ {
		c.out <- s.history[(start+i)%s.size]
	}
	c.out <- []byte(prompt)
	s.clients[c] = struct{}{}
	logger := s.logger
	s.mu.Unlock()

	logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()
		for line := range c.out {
			if _, err := conn.Write(line); err != nil {
				return
			}
		}
	}()

	s.readCommands(c)

	s.mu.Lock()
	_, present := s.clients[c]
	delete(s.clients, c)
	dropped := c.dropped
	s.mu.Unlock()

	if present {
		c.finish()
	}
	<-done
	logger.Info().Str("remote", conn.RemoteAddr().String()).Int("dropped", dropped).Msg("client disconnected")
}

func (s *Server) readCommands(c *client) {
	sc := bufio.NewScanner(c.conn)
	for sc.Scan() {
		cmd := strings.ToLower(strings.TrimSpace(sc.Text()))
		switch cmd {
		case "":
			continue
		case "status":
			s.mu.Lock()
			status := s.status
			s.mu.Unlock()
			text := "status unavailable\n"
			if status != nil {
				text = status()
			}
			s.reply(c, toCRLF([]byte(text)))
		case "help", "?":
			s.reply(c, []byte(helpText))
		case "quit", "exit":
			s.reply(c, []byte("bye\r\n"))
			return
		default:
			s.reply(c, []byte(fmt.Sprintf("unknown command %q\r\n%s", cmd, helpText)))
		}
	}
}

// reply queues a command response behind any pending log lines.
func (s *Server) reply(c *client, p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	select {
	case c.out <- append(p, prompt...):
	default:
		c.dropped++
	}
}

// toCRLF copies p, converting bare LF line endings to CRLF for telnet.
func toCRLF(p []byte) []byte {
	s := strings.ReplaceAll(string(p), "\r\n", "\n")
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

var _ io.Writer = (*Server)(nil)
