package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lure-project/lure/internal/config"
	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/ping"
	"github.com/lure-project/lure/internal/protocol"
)

var (
	// ErrBind is returned when the listening socket cannot be opened.
	ErrBind = errors.New("failed to bind listener")

	// ErrUnsupportedState is returned for a handshake whose next state is
	// neither status nor login.
	ErrUnsupportedState = errors.New("unsupported next state")
)

// TCPListener accepts client connections and runs one handler goroutine
// per connection. It never looks at the bytes itself: the handler peeks
// the first byte and picks the legacy or the modern protocol.
type TCPListener struct {
	cfg       config.ListenerConfig
	responder ping.Responder
	emitter   events.Emitter

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

// NewTCPListener creates a new TCP listener. The responder is shared by
// every connection goroutine.
func NewTCPListener(cfg config.ListenerConfig, responder ping.Responder, emitter events.Emitter) *TCPListener {
	return &TCPListener{
		cfg:       cfg,
		responder: responder,
		emitter:   emitter,
	}
}

// Listen binds the configured address. The returned error wraps ErrBind.
func (l *TCPListener) Listen(ctx context.Context) error {
	addr := l.cfg.Address()

	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrBind, addr, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Msg("TCP listener started")
	return nil
}

// Start binds and serves until ctx is cancelled.
func (l *TCPListener) Start(ctx context.Context) error {
	if err := l.Listen(ctx); err != nil {
		return err
	}
	return l.Serve(ctx)
}

// Serve runs the accept loop on a listener opened by Listen. It returns
// nil once ctx is cancelled, after every in-flight handler has finished.
func (l *TCPListener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.listener
	l.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("serve called before listen")
	}

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()
	defer l.conns.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Info().Msg("TCP listener stopping")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				log.Info().Msg("TCP listener closed")
				return nil
			}
			log.Error().Err(err).Msg("failed to accept connection")
			continue
		}

		l.conns.Add(1)
		go func() {
			defer l.conns.Done()
			l.ServeConn(ctx, conn)
		}()
	}
}

// Addr returns the bound address, or nil before Listen.
func (l *TCPListener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Stop closes the listening socket. Serve returns once in-flight handlers
// are done.
func (l *TCPListener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

// ServeConn handles one client connection to completion and closes it.
// Errors and panics are logged, never propagated.
func (l *TCPListener) ServeConn(ctx context.Context, rawConn net.Conn) {
	conn := NewConnection(rawConn, l.cfg.ReadTimeout(), l.cfg.WriteTimeout())
	defer conn.Close()

	logger := conn.Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("connection handler panicked")
		}
	}()

	first, err := conn.Peek(1)
	if err != nil {
		logger.Debug().Err(err).Msg("connection closed before first byte")
		return
	}

	if first[0] == protocol.LegacyPingByte {
		err = l.handleLegacy(ctx, conn)
	} else {
		err = l.handleModern(ctx, conn)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("connection aborted")
	}
}

// emit publishes a contact and logs it.
func (l *TCPListener) emit(ctx context.Context, conn *Connection, req ping.Request) {
	conn.Logger().Info().
		Str("kind", req.Kind.Name()).
		Msg(req.String())

	if l.emitter != nil {
		l.emitter.Emit(ctx, events.NewContactEvent("listener", req))
	}
}
