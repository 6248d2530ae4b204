package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rickgao/candlefeed/internal/metrics"
)

var (
	ErrAlreadyListening = errors.New("listener: already listening")
	ErrNotListening     = errors.New("listener: not listening")
)

// acceptBackoff is the pause after a failed Accept.
const acceptBackoff = 50 * time.Millisecond

// Handler serves one accepted connection. Handle owns conn and must close it.
type Handler interface {
	Handle(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// Config contains listener configuration.
type Config struct {
	Addr      string
	Blocklist *Blocklist
}

// Listener is the TCP accept loop.
type Listener struct {
	cfg     Config
	handler Handler
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu sync.Mutex
	ln net.Listener

	sessions sync.WaitGroup
}

// New creates a listener. Call Listen then Serve.
func New(cfg Config, h Handler, m *metrics.Metrics, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		cfg:     cfg,
		handler: h,
		metrics: m,
		logger:  logger,
	}
}

// Listen binds the configured address.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		return ErrAlreadyListening
	}
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", l.cfg.Addr, err)
	}
	l.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Serve accepts connections until ctx is done, then waits for running sessions.
// Returns nil on a ctx-driven stop.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	l.logger.Info("listener started",
		"addr", ln.Addr().String(),
		"blocklist_entries", l.cfg.Blocklist.Len(),
	)

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			l.logger.Warn("accept failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(acceptBackoff):
			}
			continue
		}

		if l.cfg.Blocklist.ContainsConn(conn) {
			l.metrics.SessionRejected()
			l.logger.Warn("rejected blocklisted peer", "remote_addr", conn.RemoteAddr().String())
			_ = conn.Close()
			continue
		}

		l.sessions.Add(1)
		go func(c net.Conn) {
			defer l.sessions.Done()
			l.handler.Handle(ctx, c)
		}(conn)
	}

	l.logger.Info("listener stopping, waiting for sessions")
	l.sessions.Wait()
	l.logger.Info("listener stopped")
	return nil
}

// Close releases the socket without waiting for sessions.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}
