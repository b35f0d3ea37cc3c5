// Package transport carries requests to the agent over plain TCP. Each line a
// client writes is one JSON request object; each response is one JSON value
// followed by a newline.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jmcleod/remotehand/internal/uuid"
	"github.com/jmcleod/remotehand/protocol"
)

const (
	// DefaultReadTimeout bounds how long a connection may sit idle between
	// requests.
	DefaultReadTimeout = 20 * time.Second
	// MaxRequestSize is the longest request line accepted.
	MaxRequestSize = 1 << 20

	writeTimeout  = 10 * time.Second
	acceptBackoff = 50 * time.Millisecond
)

// ErrServerClosed is returned by Serve once the server has been shut down.
var ErrServerClosed = errors.New("transport: server closed")

var errLineTooLong = fmt.Errorf("%w: line too long", protocol.ErrMalformed)

// Handler runs one exchange for identity.
type Handler interface {
	Handle(ctx context.Context, identity string, req protocol.Request) *protocol.Response
}

// Server accepts TCP connections and feeds their requests to a Handler.
type Server struct {
	handler     Handler
	logger      *slog.Logger
	readTimeout time.Duration
	indent      func() bool

	mu     sync.Mutex
	ln     net.Listener
	conns  map[string]net.Conn
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithReadTimeout sets the idle timeout between requests on a connection.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithIndent supplies the toggle consulted before every response is written.
// Responses are compact when it is nil or returns false.
func WithIndent(fn func() bool) Option {
	return func(s *Server) { s.indent = fn }
}

// NewServer creates a server for handler.
func NewServer(handler Handler, opts ...Option) *Server {
	s := &Server{
		handler:     handler,
		readTimeout: DefaultReadTimeout,
		conns:       make(map[string]net.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return s
}

// Listen binds addr. A bind failure is the only start-up error the agent
// treats as fatal.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled, then closes every open
// connection and waits for their goroutines. It returns nil after a
// cancellation.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrServerClosed
	}
	if ln == nil {
		return errors.New("transport: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { s.shutdown() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.shutdown()
				s.wg.Wait()
				if ctx.Err() != nil {
					return nil
				}
				return ErrServerClosed
			}
			s.logger.Warn("accept failed", "error", err)
			time.Sleep(acceptBackoff)
			continue
		}

		id := uuid.New()
		if !s.track(id, conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(id)
			s.serveConn(ctx, id, conn)
		}()
	}
}

// Close stops accepting and drops every open connection.
func (s *Server) Close() error {
	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) track(id string, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[id] = conn
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[id]; ok {
		_ = c.Close()
		delete(s.conns, id)
	}
}

// serveConn runs the request loop of one connection.
func (s *Server) serveConn(ctx context.Context, id string, conn net.Conn) {
	identity := peerIdentity(conn.RemoteAddr())
	logger := s.logger.With("conn_id", id, "remote_addr", conn.RemoteAddr().String())
	logger.Debug("connection opened")
	defer logger.Debug("connection closed")

	reader := bufio.NewReader(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return
		}
		line, err := readLine(reader)
		if errors.Is(err, errLineTooLong) {
			logger.Debug("malformed request", "error", err)
			if err := s.write(conn, errorResponse(err)); err != nil {
				logger.Warn("write failed", "error", err)
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !isClosedOrTimeout(err) {
				logger.Warn("read failed", "error", err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		var resp *protocol.Response
		req, err := protocol.Parse(line)
		if err != nil {
			logger.Debug("malformed request", "error", err)
			resp = errorResponse(err)
		} else {
			resp = s.handler.Handle(ctx, identity, req)
		}

		if err := s.write(conn, resp); err != nil {
			logger.Warn("write failed", "error", err)
			return
		}
	}
}

func errorResponse(err error) *protocol.Response {
	resp := protocol.NewResponse()
	resp.Set(protocol.FieldError, err.Error())
	return resp
}

// readLine reads one request line without its terminator. A line longer than
// MaxRequestSize is consumed up to its newline and reported as errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			if len(line) > MaxRequestSize+2 {
				line, tooLong = nil, true
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		// A final line without a newline still counts at end of stream.
		if err != nil && (!errors.Is(err, io.EOF) || tooLong || len(line) == 0) {
			return nil, err
		}
		if tooLong {
			return nil, errLineTooLong
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) > MaxRequestSize {
			return nil, errLineTooLong
		}
		return line, nil
	}
}

func (s *Server) write(conn net.Conn, resp *protocol.Response) error {
	indent := s.indent != nil && s.indent()
	out := append(resp.Format(indent), '\n')
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(out)
	return err
}

// peerIdentity reduces a peer address to its host so that every connection
// from the same host shares one session.
func peerIdentity(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func isClosedOrTimeout(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
