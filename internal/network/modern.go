package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lure-project/lure/internal/ping"
	"github.com/lure-project/lure/internal/protocol"
)

// handshake is the first packet of the modern protocol.
type handshake struct {
	ping.ServerListPing
	NextState int32
}

// readHandshake reads {len}{id}{protocol}{address}{port}{next state}. The
// length and packet id are not checked.
func readHandshake(r io.Reader) (handshake, error) {
	var hs handshake

	if _, err := protocol.ReadVarInt(r); err != nil {
		return hs, fmt.Errorf("handshake length: %w", err)
	}
	if _, err := protocol.ReadVarInt(r); err != nil {
		return hs, fmt.Errorf("handshake packet id: %w", err)
	}

	var err error
	if hs.ProtocolVersion, err = protocol.ReadVarInt(r); err != nil {
		return hs, fmt.Errorf("handshake protocol version: %w", err)
	}
	if hs.ServerAddress, err = protocol.ReadString(r); err != nil {
		return hs, fmt.Errorf("handshake server address: %w", err)
	}
	if hs.ServerPort, err = protocol.ReadUint16(r); err != nil {
		return hs, fmt.Errorf("handshake server port: %w", err)
	}
	if hs.NextState, err = protocol.ReadVarInt(r); err != nil {
		return hs, fmt.Errorf("handshake next state: %w", err)
	}
	return hs, nil
}

// skipHeader discards the {len}{id} prefix of a packet.
func skipHeader(r io.Reader, packet string) error {
	if _, err := protocol.ReadVarInt(r); err != nil {
		return fmt.Errorf("%s length: %w", packet, err)
	}
	if _, err := protocol.ReadVarInt(r); err != nil {
		return fmt.Errorf("%s packet id: %w", packet, err)
	}
	return nil
}

// handleModern runs the handshake state machine. A status query gets the
// responder's document and a pong; a login start is recorded and the
// connection dropped without an answer.
func (l *TCPListener) handleModern(ctx context.Context, conn *Connection) error {
	hs, err := readHandshake(conn)
	if err != nil {
		return err
	}

	switch hs.NextState {
	case protocol.StateStatus:
		return l.handleStatus(ctx, conn, hs.ServerListPing)
	case protocol.StateLogin:
		return l.handleLogin(ctx, conn)
	default:
		return fmt.Errorf("next state %d: %w", hs.NextState, ErrUnsupportedState)
	}
}

func (l *TCPListener) handleLogin(ctx context.Context, conn *Connection) error {
	if err := skipHeader(conn, "login start"); err != nil {
		return err
	}
	name, err := protocol.ReadString(conn)
	if err != nil {
		return fmt.Errorf("login start name: %w", err)
	}
	id, err := protocol.ReadUint128(conn)
	if err != nil {
		return fmt.Errorf("login start uuid: %w", err)
	}

	req := ping.NewRequest(conn.RemoteAddr(), ping.JoinAttempt{
		PlayerName: name,
		PlayerID:   protocol.FormatUUID(id),
	})
	l.emit(ctx, conn, req)
	return nil
}

func (l *TCPListener) handleStatus(ctx context.Context, conn *Connection, slp ping.ServerListPing) error {
	if err := skipHeader(conn, "status request"); err != nil {
		return err
	}

	req := ping.NewRequest(conn.RemoteAddr(), ping.ModernPing{ServerListPing: slp})
	resp := l.responder.Respond(req)

	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal status response: %w", err)
	}
	if _, err := conn.Write(protocol.BuildStatusResponse(string(body))); err != nil {
		return fmt.Errorf("status response: %w", err)
	}
	l.emit(ctx, conn, req)

	// Clients that only wanted the status close here, or never send the ping.
	if _, err := protocol.ReadVarInt(conn); err != nil {
		if isGracefulEnd(err) {
			return nil
		}
		return fmt.Errorf("ping request length: %w", err)
	}
	if _, err := protocol.ReadVarInt(conn); err != nil {
		return fmt.Errorf("ping request packet id: %w", err)
	}
	payload, err := protocol.ReadInt64(conn)
	if err != nil {
		return fmt.Errorf("ping request payload: %w", err)
	}

	if _, err := conn.Write(protocol.BuildPongResponse(payload)); err != nil {
		return fmt.Errorf("pong response: %w", err)
	}
	return nil
}

// isGracefulEnd reports a clean EOF or a read timeout.
func isGracefulEnd(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
